package middleware

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/sirupsen/logrus"

	"github.com/phi-labs/lambo/pkg/pool"
)

// LDAPScope mirrors the two scopes the configuration accepts
// (spec.md §6): OneLevel or Subtree.
type LDAPScope int

const (
	ScopeOneLevel LDAPScope = iota
	ScopeSubtree
)

func (s LDAPScope) ldapScope() int {
	if s == ScopeSubtree {
		return ldap.ScopeWholeSubtree
	}
	return ldap.ScopeSingleLevel
}

// AuthenticationConfig is the immutable LDAP bind configuration one
// Authentication middleware instance holds.
type AuthenticationConfig struct {
	LDAPAddress    string
	UserDirectory  string
	RDNIdentifier  string
	Scope          LDAPScope
}

// Authentication implements HTTP Basic Auth (RFC 7617) backed by an
// anonymous-bind search followed by a per-candidate simple bind
// (spec.md §4.3). It never caches credentials or connections across
// requests: each attempt opens a fresh LDAP connection, matching the
// teacher proxy's "one connection per check" style of the health
// prober rather than pooling, since bind state must not leak between
// unrelated requests.
type Authentication struct {
	Config AuthenticationConfig
	Dial   func(address string) (*ldap.Conn, error)
	Log    *logrus.Logger
}

func NewAuthentication(config AuthenticationConfig, log *logrus.Logger) *Authentication {
	return &Authentication{
		Config: config,
		Dial:   ldap.DialURL,
		Log:    log,
	}
}

func (a *Authentication) ModifyRequest(r *http.Request, ctx pool.HandlerContext) (*http.Request, *http.Response) {
	user, password, ok := basicAuthCredentials(r)
	if !ok {
		return r, unauthorized("Another Load Balancer requires authentication")
	}

	if a.authenticate(user, password) {
		return r, nil
	}
	return r, unauthorized("Another Load Balancer requires authentication")
}

func (a *Authentication) ModifyResponse(resp *http.Response, ctx pool.HandlerContext) *http.Response {
	return resp
}

func basicAuthCredentials(r *http.Request) (user, password string, ok bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "", false
	}
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(rest)
	if err != nil {
		return "", "", false
	}
	user, password, found = strings.Cut(string(decoded), ":")
	if !found {
		return "", "", false
	}
	return user, password, true
}

func (a *Authentication) authenticate(user, password string) bool {
	conn, err := a.Dial(a.Config.LDAPAddress)
	if err != nil {
		a.logError("dial", err)
		return false
	}
	defer conn.Close()

	if err := conn.UnauthenticatedBind(""); err != nil {
		a.logError("anonymous bind", err)
		return false
	}

	filter := fmt.Sprintf("(%s=%s)", a.Config.RDNIdentifier, ldap.EscapeFilter(user))
	req := ldap.NewSearchRequest(
		a.Config.UserDirectory,
		a.Config.Scope.ldapScope(), ldap.NeverDerefAliases, 0, 0, false,
		filter, []string{"dn"}, nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		a.logError("search", err)
		return false
	}

	for _, entry := range result.Entries {
		candidate, err := a.Dial(a.Config.LDAPAddress)
		if err != nil {
			continue
		}
		bindErr := candidate.Bind(entry.DN, password)
		candidate.Close()
		if bindErr == nil {
			return true
		}
	}
	return false
}

func (a *Authentication) logError(stage string, err error) {
	if a.Log != nil {
		a.Log.WithError(err).WithField("stage", stage).Debug("ldap authentication step failed")
	}
}
