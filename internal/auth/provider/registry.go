package provider

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
)

var ErrUnknownProvider = errors.New("unknown oauth provider")

// Registry looks up the configured providers by name.
type Registry struct {
	providers map[string]OAuthProvider
}

// NewRegistry indexes list by Name. A later provider with the same name
// replaces an earlier one; nil entries are skipped.
func NewRegistry(list ...OAuthProvider) *Registry {
	list = lo.Filter(list, func(p OAuthProvider, _ int) bool { return p != nil })
	return &Registry{
		providers: lo.KeyBy(list, func(p OAuthProvider) string { return p.Name() }),
	}
}

func (r *Registry) Get(name string) (OAuthProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered providers in sorted order for the sign-in page.
func (r *Registry) Names() []string {
	names := lo.Keys(r.providers)
	sort.Strings(names)
	return names
}
