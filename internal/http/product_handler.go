package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mlionhart/hartmart/internal/domain"
	"github.com/mlionhart/hartmart/internal/pricing"
)

type ProductDTO struct {
	domain.Product
	DiscountPercent int    `json:"discount_percent"`
	Price           string `json:"price"`
	OldPrice        string `json:"old_price,omitempty"`
}

func (s *Server) productDTO(p domain.Product) ProductDTO {
	dto := ProductDTO{
		Product:         p,
		DiscountPercent: pricing.DiscountPercent(p.PriceCents, p.OldPriceCents),
		Price:           pricing.Format(p.PriceCents, s.currency),
	}
	if p.OldPriceCents > 0 {
		dto.OldPrice = pricing.Format(p.OldPriceCents, s.currency)
	}
	return dto
}

// GET /api/products
func (s *Server) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.catalog.ListProducts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		out = append(out, s.productDTO(p))
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /api/products/{id}
func (s *Server) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := s.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.productDTO(p))
}
