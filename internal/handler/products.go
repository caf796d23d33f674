package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/askcart-ai/assistant/internal/middleware"
	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/internal/service"
	"github.com/askcart-ai/assistant/pkg/logger"
)

// ProductHandler handles catalog and product tool endpoints.
type ProductHandler struct {
	service *service.ProductService
	logger  *logger.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(svc *service.ProductService, log *logger.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", zap.Error(err))
		writeError(w, statusFor(err), "failed to fetch products")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(products))
}

// Search handles GET /api/v1/products/search?q=
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if err := middleware.ValidateSearchTerm(term); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	products, err := h.service.Search(r.Context(), term)
	if err != nil {
		writeError(w, statusFor(err), "failed to search products")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(products))
}

// Get handles GET /api/v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), "product not found")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// Compare handles POST /api/v1/products/compare
func (h *ProductHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req model.CompareProductsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cmp, err := h.service.Compare(r.Context(), req.ProductIDs)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to compare products", zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, model.CompareProductsResponse{
		Comparison: cmp.Text,
		Products:   cmp.Products,
	})
}

// Analyze handles POST /api/v1/products/analyze
func (h *ProductHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req model.AnalyzeQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	analysis, err := h.service.Analyze(r.Context(), req.Query)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func nonNil(products []model.Product) []model.Product {
	if products == nil {
		return []model.Product{}
	}
	return products
}
