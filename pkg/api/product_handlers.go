package api

import (
	"net/http"

	"github.com/loomworks/loom/pkg/httputil"
	"github.com/loomworks/loom/pkg/product"
)

// listProducts handles GET /api/products
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, _ := httputil.ParseQueryInt(r, "limit", 100)
	offset, _ := httputil.ParseQueryInt(r, "offset", 0)

	products, err := s.products.List(r.Context(), limit, offset)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if products == nil {
		products = []*product.Product{}
	}
	httputil.WriteSuccess(w, products)
}

// getProduct handles GET /api/products/{id}
func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	p, err := s.products.Get(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

// createProduct handles POST /api/products
func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req product.Product
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	p, err := s.products.Create(r.Context(), &req)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), dashboardCacheKey)
	httputil.WriteCreated(w, p)
}

// updateProduct handles PUT /api/products/{id}
func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req product.Product
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	p, err := s.products.Update(r.Context(), id, &req)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), dashboardCacheKey)
	httputil.WriteSuccess(w, p)
}

// deleteProduct handles DELETE /api/products/{id}
func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.products.Delete(r.Context(), id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	s.cache.Invalidate(r.Context(), dashboardCacheKey)
	httputil.WriteNoContent(w)
}
