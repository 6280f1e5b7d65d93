package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	productdomain "github.com/smallbiznis/dealflow/internal/product/domain"
)

type listProductsQuery struct {
	Search    string `form:"search"`
	Category  string `form:"category"`
	IsActive  string `form:"isActive"`
	SortBy    string `form:"sortBy"`
	SortOrder string `form:"sortOrder"`
}

func (s *Server) CreateProduct(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req productdomain.CreateRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := s.productSvc.Create(c.Request.Context(), tc, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": product})
}

func (s *Server) ListProducts(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listProductsQuery
	if !bindQuery(c, &query) {
		return
	}

	active, err := parseOptionalBool(query.IsActive)
	if err != nil {
		AbortWithError(c, newValidationError("isActive", "invalid_is_active", "invalid isActive"))
		return
	}

	sortOrder := strings.ToLower(strings.TrimSpace(query.SortOrder))
	if sortOrder != "" && sortOrder != "asc" && sortOrder != "desc" {
		AbortWithError(c, newValidationError("sortOrder", "invalid_sort_order", "sortOrder must be asc or desc"))
		return
	}

	products, err := s.productSvc.List(c.Request.Context(), tc, productdomain.ListRequest{
		Search:    strings.TrimSpace(query.Search),
		Category:  strings.TrimSpace(query.Category),
		Active:    active,
		SortBy:    strings.TrimSpace(query.SortBy),
		SortOrder: sortOrder,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": products})
}

func (s *Server) GetProductByID(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	product, err := s.productSvc.Get(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}

func (s *Server) UpdateProduct(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req productdomain.UpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := s.productSvc.Update(c.Request.Context(), tc, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": product})
}

// DeleteProduct refuses products still referenced by a deal line item.
func (s *Server) DeleteProduct(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.productSvc.Delete(c.Request.Context(), tc, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
