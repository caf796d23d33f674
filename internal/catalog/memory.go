package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/askcart-ai/assistant/internal/model"
)

// MemoryCatalog is an in-process catalog, usually seeded from a YAML file.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products []model.Product
	byID     map[string]int
}

// NewMemoryCatalog creates a catalog holding products in the given order.
func NewMemoryCatalog(products ...model.Product) *MemoryCatalog {
	c := &MemoryCatalog{byID: make(map[string]int)}
	for _, p := range products {
		c.Add(p)
	}
	return c
}

// Add inserts or replaces a product. Products without an id get one.
func (c *MemoryCatalog) Add(p model.Product) model.Product {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.Must(uuid.NewV7()).String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if i, ok := c.byID[p.ID]; ok {
		c.products[i] = p
		return p
	}
	c.byID[p.ID] = len(c.products)
	c.products = append(c.products, p)
	return p
}

// List implements Accessor.
func (c *MemoryCatalog) List(ctx context.Context) ([]model.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Product, len(c.products))
	copy(out, c.products)
	return out, nil
}

// Get implements Accessor.
func (c *MemoryCatalog) Get(ctx context.Context, id string) (*model.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, model.ErrNotFound)
	}
	p := c.products[i]
	return &p, nil
}

// Search implements Accessor.
func (c *MemoryCatalog) Search(ctx context.Context, term string) ([]model.Product, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil, fmt.Errorf("search term required: %w", model.ErrInvalidArgument)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	results := []model.Product{}
	for _, p := range c.products {
		if matches(p, term) {
			results = append(results, p)
			if len(results) == MaxSearchResults {
				break
			}
		}
	}
	return results, nil
}

// seedProduct mirrors model.Product with a YAML-friendly specifications field.
type seedProduct struct {
	model.Product  `yaml:",inline"`
	Specifications map[string]any `yaml:"specifications"`
}

type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

// LoadFile reads products from a YAML seed file. HTML in descriptions is
// reduced to plain text.
func LoadFile(path string) ([]model.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) ([]model.Product, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	products := make([]model.Product, 0, len(seed.Products))
	for i, sp := range seed.Products {
		p := sp.Product
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("product %d has no name: %w", i, model.ErrInvalidArgument)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("product %q has a negative price: %w", p.Name, model.ErrInvalidArgument)
		}
		p.Description = PlainText(p.Description)
		if len(sp.Specifications) > 0 {
			specs, err := json.Marshal(sp.Specifications)
			if err != nil {
				return nil, fmt.Errorf("product %q specifications: %w", p.Name, err)
			}
			p.Specifications = specs
		}
		products = append(products, p)
	}
	return products, nil
}
