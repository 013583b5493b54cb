package config

import (
	"net/http"
	"time"

	"github.com/phi-labs/lambo/pkg/pool"
)

// CertificateKind tags a Snapshot's certificate entries.
type CertificateKind int

const (
	CertificateLocal CertificateKind = iota
	CertificateACME
)

// CertificateSpec is one SNI-name-keyed certificate entry from
// spec.md §6. Relative paths have already been resolved against the
// config file's directory by the time a Snapshot is built.
type CertificateSpec struct {
	Kind CertificateKind

	CertificatePath string
	PrivateKeyPath  string

	Staging    bool
	Email      string
	AltNames   []string
	PersistDir string
}

// Snapshot is the immutable, atomically-published configuration
// record of spec.md §5: "the snapshot pointer is the only mutable
// process-wide state". Every field is read-only once built; a reload
// builds an entirely new Snapshot rather than mutating this one.
type Snapshot struct {
	HTTPAddress    string
	HTTPSAddress   string
	HealthInterval time.Duration
	Pools          []*pool.Pool
	Certificates   map[string]CertificateSpec
}

// PoolFor returns the first pool whose matcher accepts r and whose
// scheme set contains scheme, or nil if none does (spec.md §4.8).
func (s *Snapshot) PoolFor(r *http.Request, scheme pool.Scheme) *pool.Pool {
	for _, p := range s.Pools {
		if !p.Schemes.Contains(scheme) {
			continue
		}
		if p.Matcher.Matches(r) {
			return p
		}
	}
	return nil
}
