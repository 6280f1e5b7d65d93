package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	customfielddomain "github.com/smallbiznis/dealflow/internal/customfield/domain"
)

func (s *Server) ListCustomFields(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	entity := customfielddomain.Entity(strings.ToUpper(strings.TrimSpace(c.Query("entity"))))
	fields, err := s.customFieldSvc.List(c.Request.Context(), tc, entity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": fields})
}

func (s *Server) CreateCustomField(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req customfielddomain.CreateRequest
	if !bindJSON(c, &req) {
		return
	}

	field, err := s.customFieldSvc.Create(c.Request.Context(), tc, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": field})
}

func (s *Server) GetCustomField(c *gin.Context) {
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

	field, err := s.customFieldSvc.Get(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": field})
}

func (s *Server) UpdateCustomField(c *gin.Context) {
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

	var req customfielddomain.UpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	field, err := s.customFieldSvc.Update(c.Request.Context(), tc, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": field})
}

func (s *Server) DeleteCustomField(c *gin.Context) {
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

	if err := s.customFieldSvc.Delete(c.Request.Context(), tc, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ReorderCustomFields(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req customfielddomain.ReorderRequest
	if !bindJSON(c, &req) {
		return
	}

	fields, err := s.customFieldSvc.Reorder(c.Request.Context(), tc, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": fields})
}

func (s *Server) GetCustomFieldValues(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	entityID, err := parseIDParam(c, "entityId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	values, err := s.customFieldSvc.GetValues(c.Request.Context(), tc, entityID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": values})
}

func (s *Server) SetCustomFieldValues(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	entityID, err := parseIDParam(c, "entityId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req customfielddomain.SetValuesRequest
	if !bindJSON(c, &req) {
		return
	}

	values, err := s.customFieldSvc.SetValues(c.Request.Context(), tc, entityID, req.Values)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": values})
}
