package diagnostics

import "github.com/howth-dev/howth/internal/resolver"

// ExplainResult is "pkg explain"'s output (spec §4.12): the resolver's
// own Resolve trace, surfaced verbatim so the CLI can show exactly which
// candidate paths were probed and in what order.
type ExplainResult struct {
	Resolved   string            `json:"resolved,omitempty"`
	Reason     resolver.Reason   `json:"reason,omitempty"`
	TriedPaths []string          `json:"triedPaths"`
	Request    resolver.Request  `json:"request"`
}

// Explain wraps internal/resolver.Resolve and reshapes its Result into the
// view "pkg explain" presents: request echoed back alongside the trace so
// the output is self-contained.
func Explain(req resolver.Request) ExplainResult {
	res := resolver.Resolve(req)
	return ExplainResult{
		Resolved:   res.Resolved,
		Reason:     res.Reason,
		TriedPaths: res.TriedPaths,
		Request:    req,
	}
}
