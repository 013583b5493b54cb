package acme

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"

	"github.com/mholt/acmez/v3"
	"github.com/mholt/acmez/v3/acme"
)

const (
	letsEncryptDirectory        = "https://acme-v02.api.letsencrypt.org/directory"
	letsEncryptStagingDirectory = "https://acme-v02.api.letsencrypt.org/staging/directory"
)

// AcmezIssuer implements Issuer on top of mholt/acmez, the HTTP-01
// client library this coordinator is built around (spec.md §4.5 "the
// ACME client library used here is synchronous"). acmez's own calls
// block, and Obtain runs them on the goroutine that calls it
// (Coordinator.Issue); it starts no goroutine of its own.
type AcmezIssuer struct{}

func NewAcmezIssuer() *AcmezIssuer { return &AcmezIssuer{} }

func (i *AcmezIssuer) Obtain(ctx context.Context, req IssuanceRequest, onChallenge ChallengePublisher) (Certificate, error) {
	directory := letsEncryptDirectory
	if req.Staging {
		directory = letsEncryptStagingDirectory
	}

	accountKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Certificate{}, fmt.Errorf("acme: generating account key: %w", err)
	}

	client := &acmez.Client{
		Client: &acme.Client{
			Directory: directory,
		},
		ChallengeSolvers: map[string]acmez.Solver{
			acme.ChallengeTypeHTTP01: &httpSolver{onChallenge: onChallenge},
		},
	}

	account := acme.Account{
		Contact:              []string{"mailto:" + req.Email},
		TermsOfServiceAgreed: true,
		PrivateKey:           accountKey,
	}

	account, err = client.NewAccount(ctx, account)
	if err != nil {
		return Certificate{}, fmt.Errorf("acme: registering account: %w", err)
	}

	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return Certificate{}, fmt.Errorf("acme: generating certificate key: %w", err)
	}

	names := append([]string{req.PrimaryName}, req.AltNames...)
	certs, err := client.ObtainCertificateForSANs(ctx, account, certKey, names)
	if err != nil {
		return Certificate{}, fmt.Errorf("acme: obtaining certificate: %w", err)
	}
	if len(certs) == 0 {
		return Certificate{}, fmt.Errorf("acme: no certificate returned for %s", req.PrimaryName)
	}

	keyDER, err := x509.MarshalECPrivateKey(certKey)
	if err != nil {
		return Certificate{}, fmt.Errorf("acme: marshaling certificate key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return Certificate{
		CertPEM:       certs[0].ChainPEM,
		PrivateKeyPEM: keyPEM,
	}, nil
}

// httpSolver bridges acmez's Solver interface to the coordinator's
// pending-challenge set: Present publishes the token/proof pair (via
// onChallenge, which inserts it before returning so a concurrent
// /.well-known/acme-challenge/<token> request can already see it),
// and CleanUp, which acmez invokes after the CA's validation result is
// known, win or lose, runs the cleanup func registered for that
// challenge's token.
type httpSolver struct {
	onChallenge ChallengePublisher
	mu          sync.Mutex
	done        map[string]func()
}

func (s *httpSolver) Present(ctx context.Context, chal acme.Challenge) error {
	done := s.onChallenge(chal.Token, chal.KeyAuthorization)
	s.mu.Lock()
	if s.done == nil {
		s.done = make(map[string]func())
	}
	s.done[chal.Token] = done
	s.mu.Unlock()
	return nil
}

func (s *httpSolver) CleanUp(ctx context.Context, chal acme.Challenge) error {
	s.mu.Lock()
	done := s.done[chal.Token]
	delete(s.done, chal.Token)
	s.mu.Unlock()
	if done != nil {
		done()
	}
	return nil
}
