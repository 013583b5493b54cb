// Package acme implements the HTTP-01 challenge coordinator of
// spec.md §4.5: it answers the well-known challenge path while an
// issuance is in flight, and drives certificate issuance through an
// Issuer. Issue runs the synchronous ACME client on the goroutine that
// calls it and blocks until it finishes; the package starts no worker
// goroutine of its own.
package acme

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/phi-labs/lambo/pkg/metrics"
)

const challengePathPrefix = "/.well-known/acme-challenge/"

// Issuer performs the synchronous ACME handshake. It is implemented by
// an acmez-backed client in production and by a fake in tests, mirroring
// the original_source acme.rs split between AcmeHandler (coordination)
// and the acme_lib calls (issuance mechanics).
type Issuer interface {
	// Obtain drives one issuance to completion, invoking onChallenge
	// each time a new HTTP-01 token/proof pair must be published and
	// is ready to be validated. It blocks until the certificate is
	// issued or an unrecoverable error occurs.
	Obtain(ctx context.Context, req IssuanceRequest, onChallenge ChallengePublisher) (Certificate, error)
}

// ChallengePublisher receives one HTTP-01 token/proof pair and
// returns a cleanup func the caller must invoke once that challenge's
// validation outcome (success or failure) is known, regardless of
// which it was (spec.md §5 "scoped cleanup").
type ChallengePublisher func(token, proof string) (done func())

type IssuanceRequest struct {
	Staging     bool
	Email       string
	PersistDir  string
	PrimaryName string
	AltNames    []string
}

type Certificate struct {
	CertPEM       []byte
	PrivateKeyPEM []byte
}

type openChallenge struct {
	token string
	proof string
}

// Coordinator holds the pending-challenge set and serializes issuance
// per SNI name (spec.md §4.5 invariant: "at most one worker per
// sni_name at a time").
type Coordinator struct {
	Issuer  Issuer
	Log     *logrus.Logger
	Metrics *metrics.Registry

	mu         sync.Mutex
	challenges []openChallenge
	inFlight   map[string]struct{}
}

func NewCoordinator(issuer Issuer, log *logrus.Logger) *Coordinator {
	return &Coordinator{
		Issuer:   issuer,
		Log:      log,
		inFlight: make(map[string]struct{}),
	}
}

// IsChallengeRequest reports whether r targets the ACME HTTP-01 path.
func (c *Coordinator) IsChallengeRequest(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, challengePathPrefix)
}

// RespondToChallenge answers a /.well-known/acme-challenge/<token>
// request: 200 with the registered proof, 404 if the token is unknown,
// or 400 if the path carries no token (spec.md §6).
func (c *Coordinator) RespondToChallenge(r *http.Request) *http.Response {
	token := strings.TrimPrefix(r.URL.Path, challengePathPrefix)
	if token == "" {
		return response(http.StatusBadRequest, "missing challenge token")
	}

	proof, ok := c.proofFor(token)
	if !ok {
		return response(http.StatusNotFound, "")
	}
	return response(http.StatusOK, proof)
}

func (c *Coordinator) proofFor(token string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.challenges {
		if ch.token == token {
			return ch.proof, true
		}
	}
	return "", false
}

func (c *Coordinator) addChallenge(token, proof string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.challenges = append(c.challenges, openChallenge{token: token, proof: proof})
}

// removeChallenge must run regardless of validation outcome (spec.md
// §5 "scoped cleanup"); Issue wraps it in the done func it hands to the
// Issuer for each published challenge.
func (c *Coordinator) removeChallenge(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ch := range c.challenges {
		if ch.token == token {
			c.challenges = append(c.challenges[:i], c.challenges[i+1:]...)
			return
		}
	}
}

// Issue drives one certificate issuance for req.PrimaryName. Concurrent
// calls for the same name are serialized: a second caller receives an
// error immediately rather than queueing, since only a reload path
// that already deduplicates by name should ever call this.
func (c *Coordinator) Issue(ctx context.Context, req IssuanceRequest) (Certificate, error) {
	if !c.tryLock(req.PrimaryName) {
		if c.Metrics != nil {
			c.Metrics.AcmeIssuance.WithLabelValues("rejected_in_progress").Inc()
		}
		return Certificate{}, &ErrIssuanceInProgress{Name: req.PrimaryName}
	}
	defer c.unlock(req.PrimaryName)

	cert, err := c.Issuer.Obtain(ctx, req, func(token, proof string) func() {
		c.addChallenge(token, proof)
		return func() { c.removeChallenge(token) }
	})

	if c.Metrics != nil {
		if err != nil {
			c.Metrics.AcmeIssuance.WithLabelValues("failed").Inc()
		} else {
			c.Metrics.AcmeIssuance.WithLabelValues("issued").Inc()
		}
	}
	return cert, err
}

func (c *Coordinator) tryLock(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inFlight[name]; busy {
		return false
	}
	c.inFlight[name] = struct{}{}
	return true
}

func (c *Coordinator) unlock(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, name)
}

type ErrIssuanceInProgress struct {
	Name string
}

func (e *ErrIssuanceInProgress) Error() string {
	return "acme: issuance already in progress for " + e.Name
}

func response(status int, body string) *http.Response {
	resp := &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       http.NoBody,
	}
	if body != "" {
		resp.Body = io.NopCloser(strings.NewReader(body))
	}
	return resp
}
