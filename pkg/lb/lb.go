// Package lb implements the four load-balancing strategies of spec.md
// §4.2 plus the response-mutating StickyCookie wrapper. Every strategy
// exposes Select / OnOpen / OnClose and satisfies pool.Strategy.
package lb

import (
	"github.com/phi-labs/lambo/pkg/pool"
)

// Selection is re-exported for callers that only import pkg/lb.
type Selection = pool.Selection
