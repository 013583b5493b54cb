package lb

import (
	"net"
	"net/http"
	"sync"
)

// RoundRobin holds a single monotonic counter under mutual exclusion
// (spec.md §3, §4.2). Per the concrete scenario in spec.md §8, the
// counter is incremented before being taken modulo n, so a 3-address
// pool visits 1, 2, 0, 1, 2, 0, ...
type RoundRobin struct {
	mu      sync.Mutex
	counter uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (s *RoundRobin) Select(r *http.Request, clientAddr *net.TCPAddr, healthy []string) Selection {
	if len(healthy) == 0 {
		return Selection{}
	}
	s.mu.Lock()
	s.counter++
	index := s.counter % uint64(len(healthy))
	s.mu.Unlock()
	return Selection{Address: healthy[index]}
}

func (s *RoundRobin) OnOpen(address string)  {}
func (s *RoundRobin) OnClose(address string) {}
