package policyopa

import "github.com/open-policy-agent/opa/ast"

// allowedBuiltins is the closed set an upload policy may call. Anything that
// reads the clock, the network or randomness is excluded so a decision depends
// on its input alone.
var allowedBuiltins = map[string]struct{}{
	"assign":     {},
	"concat":     {},
	"contains":   {},
	"count":      {},
	"endswith":   {},
	"eq":         {},
	"equal":      {},
	"format_int": {},
	"gt":         {},
	"gte":        {},
	"indexof":    {},
	"lower":      {},
	"lt":         {},
	"lte":        {},
	"max":        {},
	"min":        {},
	"neq":        {},
	"object.get": {},
	"sort":       {},
	"split":      {},
	"sprintf":    {},
	"startswith": {},
	"sum":        {},
	"trim":       {},
	"upper":      {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(builtins))
	for _, builtin := range builtins {
		if _, ok := allowedBuiltins[builtin.Name]; !ok {
			continue
		}
		allowed = append(allowed, builtin)
	}
	return allowed
}
