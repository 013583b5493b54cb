package lb

import (
	"math/rand"
	"net"
	"net/http"
)

// Random returns a uniformly random healthy address. It is stateless
// (spec.md §3, §4.2).
type Random struct{}

func NewRandom() *Random { return &Random{} }

func (s *Random) Select(r *http.Request, clientAddr *net.TCPAddr, healthy []string) Selection {
	if len(healthy) == 0 {
		return Selection{}
	}
	return Selection{Address: healthy[rand.Intn(len(healthy))]}
}

func (s *Random) OnOpen(address string)  {}
func (s *Random) OnClose(address string) {}
