package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/kinds"
	"github.com/graphql-go/graphql/language/printer"
	"github.com/graphql-go/graphql/language/visitor"
)

const anonymousOperationName = "<anonymous>"

// Digest domains keep an operation hash from ever equalling a schema fingerprint.
const (
	operationDigestDomain = "pg-graphql/operation/v1"
	schemaDigestDomain    = "pg-graphql/schema/v1"
)

// canonicalOperationAndHash prints op followed by every fragment it reaches,
// in name order, and digests the text together with the operation name.
func canonicalOperationAndHash(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition) (string, string, error) {
	if op == nil {
		return "", "", fmt.Errorf("operation is nil")
	}
	reached, err := reachableFragments(op, fragments)
	if err != nil {
		return "", "", err
	}
	definitions := append([]ast.Node{op}, reached...)
	printed, ok := printer.Print(ast.NewDocument(&ast.Document{Definitions: definitions})).(string)
	if !ok {
		return "", "", fmt.Errorf("printing canonical operation failed")
	}
	return printed, digest(operationDigestDomain, effectiveOperationName(op), printed), nil
}

// reachableFragments follows fragment spreads from op transitively.
func reachableFragments(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition) ([]ast.Node, error) {
	seen := map[string]bool{}
	var pending []string
	opts := &visitor.VisitorOptions{
		KindFuncMap: map[string]visitor.NamedVisitFuncs{
			kinds.FragmentSpread: {Kind: func(p visitor.VisitFuncParams) (string, interface{}) {
				if spread, ok := p.Node.(*ast.FragmentSpread); ok && spread.Name != nil && !seen[spread.Name.Value] {
					seen[spread.Name.Value] = true
					pending = append(pending, spread.Name.Value)
				}
				return visitor.ActionNoChange, nil
			}},
		},
	}
	visitor.Visit(op, opts, nil)

	names := []string{}
	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]
		fragment, ok := fragments[name]
		if !ok || fragment == nil {
			return nil, fmt.Errorf("fragment %q not found", name)
		}
		names = append(names, name)
		visitor.Visit(fragment, opts, nil)
	}
	sort.Strings(names)

	out := make([]ast.Node, len(names))
	for i, name := range names {
		out[i] = fragments[name]
	}
	return out, nil
}

func effectiveOperationName(op *ast.OperationDefinition) string {
	if op == nil || op.Name == nil || op.Name.Value == "" {
		return anonymousOperationName
	}
	return op.Name.Value
}

// digest is a SHA-256 over length-prefixed parts, so ("ab", "c") and
// ("a", "bc") differ.
func digest(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		_, _ = fmt.Fprintf(h, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SchemaFingerprint identifies a generated schema by its printed SDL. Two
// builds over the same catalog and options print the same SDL and so share a
// fingerprint.
func SchemaFingerprint(sdl string) string {
	return digest(schemaDigestDomain, sdl)
}
