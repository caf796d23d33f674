// Package catalog provides read access to the product catalog.
package catalog

import (
	"context"
	"strings"

	"github.com/askcart-ai/assistant/internal/model"
)

// MaxSearchResults caps the number of products Search returns.
const MaxSearchResults = 20

// Accessor is read-only access to the catalog.
type Accessor interface {
	// List returns the full active catalog.
	List(ctx context.Context) ([]model.Product, error)

	// Get returns one product, or model.ErrNotFound.
	Get(ctx context.Context, id string) (*model.Product, error)

	// Search returns up to MaxSearchResults products whose name or
	// description contains term, ignoring case.
	Search(ctx context.Context, term string) ([]model.Product, error)
}

func matches(p model.Product, lowerTerm string) bool {
	return strings.Contains(strings.ToLower(p.Name), lowerTerm) ||
		strings.Contains(strings.ToLower(p.Description), lowerTerm)
}
