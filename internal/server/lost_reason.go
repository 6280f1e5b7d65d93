package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	lostreasondomain "github.com/smallbiznis/dealflow/internal/lostreason/domain"
)

func (s *Server) ListLostReasons(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	reasons, err := s.lostReasonSvc.List(c.Request.Context(), tc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reasons})
}

func (s *Server) CreateLostReason(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req lostreasondomain.CreateRequest
	if !bindJSON(c, &req) {
		return
	}

	reason, err := s.lostReasonSvc.Create(c.Request.Context(), tc, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": reason})
}

func (s *Server) DeleteLostReason(c *gin.Context) {
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

	if err := s.lostReasonSvc.Delete(c.Request.Context(), tc, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
