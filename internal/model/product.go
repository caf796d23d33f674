package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Product is a catalog item. Price is in minor currency units (cents).
type Product struct {
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	Description    string          `json:"description,omitempty" yaml:"description"`
	Price          int64           `json:"price" yaml:"price"`
	ImageURL       string          `json:"imageUrl,omitempty" yaml:"image_url"`
	Category       string          `json:"category,omitempty" yaml:"category"`
	Specifications json.RawMessage `json:"specifications,omitempty" yaml:"-"`
	Tags           []string        `json:"tags,omitempty" yaml:"tags"`
	CreatedAt      time.Time       `json:"createdAt" yaml:"-"`
}

// FormatPrice renders cents as a dollar amount without floating point.
func FormatPrice(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// ProductIDs returns the ids of products in order.
func ProductIDs(products []Product) []string {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}

// CompareProductsRequest is the request to compare catalog products.
type CompareProductsRequest struct {
	ProductIDs []string `json:"productIds"`
}

// CompareProductsResponse carries the comparison and the compared products.
type CompareProductsResponse struct {
	Comparison string    `json:"comparison"`
	Products   []Product `json:"products"`
}

// AnalyzeQueryRequest is the request to analyze a product search query.
type AnalyzeQueryRequest struct {
	Query string `json:"query"`
}
