package policyopa

import "github.com/open-policy-agent/opa/ast"

// Issuance policies may only use pure, deterministic builtins. Anything
// touching time, randomness or the network is rejected at load.
var allowedBuiltins = map[string]struct{}{
	"abs":        {},
	"assign":     {},
	"ceil":       {},
	"concat":     {},
	"contains":   {},
	"count":      {},
	"div":        {},
	"endswith":   {},
	"eq":         {},
	"equal":      {},
	"floor":      {},
	"format_int": {},
	"gt":         {},
	"gte":        {},
	"lower":      {},
	"lt":         {},
	"lte":        {},
	"max":        {},
	"min":        {},
	"minus":      {},
	"mul":        {},
	"neq":        {},
	"object.get": {},
	"plus":       {},
	"round":      {},
	"sort":       {},
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
