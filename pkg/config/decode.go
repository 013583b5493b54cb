package config

import (
	"fmt"
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"github.com/phi-labs/lambo/pkg/lb"
	"github.com/phi-labs/lambo/pkg/middleware"
	"github.com/phi-labs/lambo/pkg/pool"
)

// tagged reads the single key of a one-entry map, the shape every
// strategy and middleware entry takes in the config file (spec.md §6).
func tagged(entry map[string]any) (string, any, error) {
	if len(entry) != 1 {
		return "", nil, fmt.Errorf("config: expected exactly one tag, got %d", len(entry))
	}
	for name, payload := range entry {
		return name, payload, nil
	}
	panic("unreachable")
}

func decodeStrategy(entry map[string]any) (pool.Strategy, error) {
	name, payload, err := tagged(entry)
	if err != nil {
		return nil, err
	}

	switch name {
	case "Random":
		return lb.NewRandom(), nil
	case "IPHash":
		return lb.NewIPHash(), nil
	case "RoundRobin":
		return lb.NewRoundRobin(), nil
	case "LeastConnection":
		return lb.NewLeastConnection(), nil
	case "StickyCookie":
		var body struct {
			CookieName string         `mapstructure:"cookie_name"`
			HTTPOnly   bool           `mapstructure:"http_only"`
			Secure     bool           `mapstructure:"secure"`
			SameSite   string         `mapstructure:"same_site"`
			Inner      map[string]any `mapstructure:"inner"`
		}
		if err := mapstructure.Decode(payload, &body); err != nil {
			return nil, fmt.Errorf("config: decoding StickyCookie: %w", err)
		}
		inner, err := decodeStrategy(body.Inner)
		if err != nil {
			return nil, fmt.Errorf("config: StickyCookie inner strategy: %w", err)
		}
		return lb.NewStickyCookie(lb.StickyCookieConfig{
			CookieName: body.CookieName,
			HTTPOnly:   body.HTTPOnly,
			Secure:     body.Secure,
			SameSite:   sameSite(body.SameSite),
		}, inner), nil
	default:
		return nil, fmt.Errorf("config: unknown strategy %q", name)
	}
}

func sameSite(name string) http.SameSite {
	switch name {
	case "Strict":
		return http.SameSiteStrictMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func decodeMiddlewares(entries []map[string]any, log *logrus.Logger) ([]middleware.Middleware, error) {
	result := make([]middleware.Middleware, 0, len(entries))
	for _, entry := range entries {
		mw, err := decodeMiddleware(entry, log)
		if err != nil {
			return nil, err
		}
		result = append(result, mw)
	}
	return result, nil
}

func decodeMiddleware(entry map[string]any, log *logrus.Logger) (middleware.Middleware, error) {
	name, payload, err := tagged(entry)
	if err != nil {
		return nil, err
	}

	switch name {
	case "Compression":
		return middleware.NewCompression(), nil
	case "HttpsRedirector":
		return middleware.NewHttpsRedirector(), nil
	case "Authentication":
		var body struct {
			LDAPAddress   string `mapstructure:"ldap_address"`
			UserDirectory string `mapstructure:"user_directory"`
			RDNIdentifier string `mapstructure:"rdn_identifier"`
			Recursive     bool   `mapstructure:"recursive"`
		}
		if err := mapstructure.Decode(payload, &body); err != nil {
			return nil, fmt.Errorf("config: decoding Authentication: %w", err)
		}
		scope := middleware.ScopeOneLevel
		if body.Recursive {
			scope = middleware.ScopeSubtree
		}
		return middleware.NewAuthentication(middleware.AuthenticationConfig{
			LDAPAddress:   body.LDAPAddress,
			UserDirectory: body.UserDirectory,
			RDNIdentifier: body.RDNIdentifier,
			Scope:         scope,
		}, log), nil
	case "RateLimiter":
		var body struct {
			Limit     uint64 `mapstructure:"limit"`
			WindowSec uint64 `mapstructure:"window_sec"`
		}
		if err := mapstructure.Decode(payload, &body); err != nil {
			return nil, fmt.Errorf("config: decoding RateLimiter: %w", err)
		}
		return middleware.NewRateLimiter(body.Limit, body.WindowSec), nil
	case "MaxBodySize":
		var body struct {
			Limit int64 `mapstructure:"limit"`
		}
		if err := mapstructure.Decode(payload, &body); err != nil {
			return nil, fmt.Errorf("config: decoding MaxBodySize: %w", err)
		}
		return middleware.NewMaxBodySize(body.Limit), nil
	case "CustomErrorPages":
		var body struct {
			Location string `mapstructure:"location"`
			Errors   []int  `mapstructure:"errors"`
		}
		if err := mapstructure.Decode(payload, &body); err != nil {
			return nil, fmt.Errorf("config: decoding CustomErrorPages: %w", err)
		}
		return middleware.NewCustomErrorPages(body.Location, body.Errors), nil
	default:
		return nil, fmt.Errorf("config: unknown middleware %q", name)
	}
}
