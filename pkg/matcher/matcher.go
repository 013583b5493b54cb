// Package matcher implements the pool rule expression language from
// spec.md §4.1: a small recursive-descent parser over leaves like
// Host('...') and Path('...'), combined with && / || at a single,
// left-associative precedence level (parentheses required to mix them).
package matcher

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
)

// Kind tags an Expr's variant.
type Kind int

const (
	KindHost Kind = iota
	KindHostRegexp
	KindMethod
	KindPath
	KindPathRegexp
	KindQuery
	KindAnd
	KindOr
)

// Expr is the recursive sum type described in spec.md §3. Leaves carry
// their string/regex payload; internal nodes carry two children.
//
// Regex nodes compare equal by source-string equality (never by
// pointer or compiled-form identity), as required for the parse
// round-trip law in spec.md §8.
type Expr struct {
	Kind Kind

	// Leaves.
	Str         string // Host, Method, Path
	RegexSource string // HostRegexp, PathRegexp (kept for equality/printing)
	Regex       *regexp.Regexp
	QueryKey    string
	QueryValue  string

	// Internal nodes.
	Left  *Expr
	Right *Expr
}

func Host(s string) *Expr   { return &Expr{Kind: KindHost, Str: s} }
func Method(s string) *Expr { return &Expr{Kind: KindMethod, Str: s} }
func Path(s string) *Expr   { return &Expr{Kind: KindPath, Str: s} }

func Query(key, value string) *Expr {
	return &Expr{Kind: KindQuery, QueryKey: key, QueryValue: value}
}

func HostRegexp(source string) (*Expr, error) {
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, err
	}
	return &Expr{Kind: KindHostRegexp, RegexSource: source, Regex: re}, nil
}

func PathRegexp(source string) (*Expr, error) {
	re, err := regexp.Compile(source)
	if err != nil {
		return nil, err
	}
	return &Expr{Kind: KindPathRegexp, RegexSource: source, Regex: re}, nil
}

func And(left, right *Expr) *Expr { return &Expr{Kind: KindAnd, Left: left, Right: right} }
func Or(left, right *Expr) *Expr  { return &Expr{Kind: KindOr, Left: left, Right: right} }

// Equal compares two expressions structurally, treating regex nodes as
// equal iff their source strings match (spec.md §3).
func (e *Expr) Equal(other *Expr) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.Kind != other.Kind {
		return false
	}
	switch e.Kind {
	case KindHost, KindMethod, KindPath:
		return e.Str == other.Str
	case KindHostRegexp, KindPathRegexp:
		return e.RegexSource == other.RegexSource
	case KindQuery:
		return e.QueryKey == other.QueryKey && e.QueryValue == other.QueryValue
	case KindAnd, KindOr:
		return e.Left.Equal(other.Left) && e.Right.Equal(other.Right)
	default:
		return false
	}
}

// Matches evaluates the expression against a request, per the
// per-leaf semantics in spec.md §4.1. It depends only on the request's
// method, path, query and Host header, never on mutable process state.
func (e *Expr) Matches(r *http.Request) bool {
	switch e.Kind {
	case KindHost:
		return r.Host == e.Str
	case KindHostRegexp:
		return e.Regex.MatchString(r.Host)
	case KindMethod:
		return r.Method == e.Str
	case KindPath:
		return r.URL.Path == e.Str
	case KindPathRegexp:
		return e.Regex.MatchString(r.URL.Path)
	case KindQuery:
		return matchesQuery(r.URL.RawQuery, e.QueryKey, e.QueryValue)
	case KindAnd:
		return e.Left.Matches(r) && e.Right.Matches(r)
	case KindOr:
		return e.Left.Matches(r) || e.Right.Matches(r)
	default:
		return false
	}
}

func matchesQuery(rawQuery, key, value string) bool {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return false
	}
	for _, v := range values[key] {
		if v == value {
			return true
		}
	}
	return false
}

func (e *Expr) String() string {
	switch e.Kind {
	case KindHost:
		return fmt.Sprintf("Host(%q)", e.Str)
	case KindHostRegexp:
		return fmt.Sprintf("HostRegexp(%q)", e.RegexSource)
	case KindMethod:
		return fmt.Sprintf("Method(%q)", e.Str)
	case KindPath:
		return fmt.Sprintf("Path(%q)", e.Str)
	case KindPathRegexp:
		return fmt.Sprintf("PathRegexp(%q)", e.RegexSource)
	case KindQuery:
		return fmt.Sprintf("Query(%q, %q)", e.QueryKey, e.QueryValue)
	case KindAnd:
		return fmt.Sprintf("(%s && %s)", e.Left, e.Right)
	case KindOr:
		return fmt.Sprintf("(%s || %s)", e.Left, e.Right)
	default:
		return "<invalid>"
	}
}
