package lb

import (
	"net"
	"net/http"
)

// SameSite mirrors the three values the config layer accepts
// (original_source configuration.rs StickyCookieSameSite), mapped onto
// net/http's SameSite constants.
type SameSite = http.SameSite

// StickyCookieConfig is the immutable cookie-configuration record a
// StickyCookie strategy wraps (spec.md §3).
type StickyCookieConfig struct {
	CookieName string
	Secure     bool
	HTTPOnly   bool
	SameSite   SameSite
}

// StickyCookie wraps an inner strategy. If the request carries a
// cookie naming a healthy address, that address is returned with no
// response mapper. Otherwise the inner strategy decides, and a
// response mapper attaches a Set-Cookie binding the choice for next
// time (spec.md §4.2, concrete scenario §8.3).
type StickyCookie struct {
	Config StickyCookieConfig
	Inner  Strategy
}

// Strategy is a local alias of pool.Strategy so the sticky-cookie
// wrapper can hold an inner strategy without importing pool's
// interface type twice under different names.
type Strategy interface {
	Select(r *http.Request, clientAddr *net.TCPAddr, healthy []string) Selection
	OnOpen(address string)
	OnClose(address string)
}

func NewStickyCookie(config StickyCookieConfig, inner Strategy) *StickyCookie {
	return &StickyCookie{Config: config, Inner: inner}
}

func (s *StickyCookie) Select(r *http.Request, clientAddr *net.TCPAddr, healthy []string) Selection {
	if cookie, err := r.Cookie(s.Config.CookieName); err == nil {
		for _, addr := range healthy {
			if addr == cookie.Value {
				return Selection{Address: addr}
			}
		}
	}

	selection := s.Inner.Select(r, clientAddr, healthy)
	if selection.Address == "" {
		return selection
	}
	innerMapper := selection.ResponseMapper
	chosen := selection.Address
	selection.ResponseMapper = func(resp *http.Response) {
		if innerMapper != nil {
			innerMapper(resp)
		}
		s.setCookie(resp, chosen)
	}
	return selection
}

func (s *StickyCookie) setCookie(resp *http.Response, address string) {
	cookie := &http.Cookie{
		Name:     s.Config.CookieName,
		Value:    address,
		Secure:   s.Config.Secure,
		HttpOnly: s.Config.HTTPOnly,
		SameSite: s.Config.SameSite,
		Path:     "/",
	}
	value := cookie.String()
	if value == "" {
		return
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Add("Set-Cookie", value)
}

func (s *StickyCookie) OnOpen(address string) { s.Inner.OnOpen(address) }

func (s *StickyCookie) OnClose(address string) { s.Inner.OnClose(address) }
