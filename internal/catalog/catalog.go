package catalog

import (
	"context"
	"strings"

	"github.com/rendis/flowcheck/pkg/schema"
)

// Catalog is the read-only source of node-type descriptors.
// Resolve must be side-effect free; implementations are safe for concurrent use.
type Catalog interface {
	// Resolve returns the descriptor for an exact type string, or a
	// NOT_FOUND FlowError.
	Resolve(ctx context.Context, nodeType string) (*schema.Descriptor, error)
}

// Lister is implemented by catalogs that can enumerate their types.
// It feeds "did you mean" suggestions.
type Lister interface {
	Types(ctx context.Context) ([]string, error)
}

// Package prefixes used by the platform.
const (
	PackageBase      = "n8n-nodes-base"
	PackageLangChain = "@n8n/n8n-nodes-langchain"

	shortBase      = "nodes-base"
	shortLangChain = "nodes-langchain"
)

// NotFound builds the error returned for unknown types.
func NotFound(nodeType string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "node type %q not found", nodeType)
}

// IsNotFound reports whether err is a not-found lookup failure.
func IsNotFound(err error) bool {
	return schema.IsCode(err, schema.ErrCodeNotFound)
}

// Candidates returns the spellings tried for a type, literal first, then the
// short/full package alias normalizations. Duplicates are removed.
func Candidates(nodeType string) []string {
	nodeType = strings.TrimSpace(nodeType)
	out := []string{nodeType}
	add := func(s string) {
		for _, e := range out {
			if e == s {
				return
			}
		}
		out = append(out, s)
	}

	switch {
	case strings.HasPrefix(nodeType, PackageBase+"."):
		add(shortBase + "." + strings.TrimPrefix(nodeType, PackageBase+"."))
	case strings.HasPrefix(nodeType, shortBase+"."):
		add(PackageBase + "." + strings.TrimPrefix(nodeType, shortBase+"."))
	case strings.HasPrefix(nodeType, PackageLangChain+"."):
		add(shortLangChain + "." + strings.TrimPrefix(nodeType, PackageLangChain+"."))
	case strings.HasPrefix(nodeType, "n8n-"+shortLangChain+"."):
		local := strings.TrimPrefix(nodeType, "n8n-"+shortLangChain+".")
		add(PackageLangChain + "." + local)
		add(shortLangChain + "." + local)
	case strings.HasPrefix(nodeType, shortLangChain+"."):
		local := strings.TrimPrefix(nodeType, shortLangChain+".")
		add(PackageLangChain + "." + local)
	}
	return out
}

// Canonical returns the fully namespaced spelling of a type when it uses a
// known short form, or the input unchanged.
func Canonical(nodeType string) string {
	switch {
	case strings.HasPrefix(nodeType, shortBase+"."):
		return PackageBase + "." + strings.TrimPrefix(nodeType, shortBase+".")
	case strings.HasPrefix(nodeType, "n8n-"+shortLangChain+"."):
		return PackageLangChain + "." + strings.TrimPrefix(nodeType, "n8n-"+shortLangChain+".")
	case strings.HasPrefix(nodeType, shortLangChain+"."):
		return PackageLangChain + "." + strings.TrimPrefix(nodeType, shortLangChain+".")
	}
	return nodeType
}

// IsBuiltinPackage reports whether the type belongs to a package shipped with
// the platform. Anything else is a community node.
func IsBuiltinPackage(nodeType string) bool {
	c := Canonical(nodeType)
	return strings.HasPrefix(c, PackageBase+".") || strings.HasPrefix(c, PackageLangChain+".")
}

// ResolveAny tries every candidate spelling in order and returns the first
// descriptor found together with the spelling that matched. Lookup failures
// other than not-found are treated as not-found.
func ResolveAny(ctx context.Context, cat Catalog, nodeType string) (*schema.Descriptor, string, error) {
	if cat == nil {
		return nil, "", NotFound(nodeType)
	}
	for _, c := range Candidates(nodeType) {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		desc, err := cat.Resolve(ctx, c)
		if err == nil && desc != nil {
			return desc, c, nil
		}
	}
	return nil, "", NotFound(nodeType)
}

// CurrentVersion returns the latest version of a type, resolving aliases.
func CurrentVersion(ctx context.Context, cat Catalog, nodeType string) (float64, error) {
	desc, _, err := ResolveAny(ctx, cat, nodeType)
	if err != nil {
		return 0, err
	}
	return desc.CurrentVersion, nil
}
