package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	leaddomain "github.com/smallbiznis/dealflow/internal/lead/domain"
)

func (s *Server) ListLeads(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req leaddomain.ListLeadRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := s.leadSvc.List(c.Request.Context(), tc, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Leads, "page_info": resp.PageInfo})
}

func (s *Server) CreateLead(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req leaddomain.CreateLeadRequest
	if !bindJSON(c, &req) {
		return
	}

	lead, err := s.leadSvc.Create(c.Request.Context(), tc, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": lead})
}

func (s *Server) GetLead(c *gin.Context) {
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

	lead, err := s.leadSvc.Get(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lead})
}

func (s *Server) UpdateLead(c *gin.Context) {
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

	var req leaddomain.UpdateLeadRequest
	if !bindJSON(c, &req) {
		return
	}

	lead, err := s.leadSvc.Update(c.Request.Context(), tc, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lead})
}

func (s *Server) AssignLead(c *gin.Context) {
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

	var req leaddomain.AssignLeadRequest
	if !bindJSON(c, &req) {
		return
	}

	lead, err := s.leadSvc.Assign(c.Request.Context(), tc, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": lead})
}

func (s *Server) DeleteLead(c *gin.Context) {
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

	if err := s.leadSvc.Delete(c.Request.Context(), tc, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
