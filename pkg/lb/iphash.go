package lb

import (
	"hash/fnv"
	"net"
	"net/http"
)

// IPHash hashes the client IP (never the port) with a stable
// non-cryptographic hash and indexes into the healthy set with it.
// Stateless, and deterministic for the life of the process given the
// same IP and address list (spec.md §4.2).
type IPHash struct{}

func NewIPHash() *IPHash { return &IPHash{} }

func (s *IPHash) Select(r *http.Request, clientAddr *net.TCPAddr, healthy []string) Selection {
	if len(healthy) == 0 {
		return Selection{}
	}
	h := fnv.New64a()
	if clientAddr != nil {
		_, _ = h.Write(clientAddr.IP)
	}
	index := h.Sum64() % uint64(len(healthy))
	return Selection{Address: healthy[index]}
}

func (s *IPHash) OnOpen(address string)  {}
func (s *IPHash) OnClose(address string) {}
