package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	pipelinedomain "github.com/smallbiznis/dealflow/internal/pipeline/domain"
)

func (s *Server) ListPipelines(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	pipelines, err := s.pipelineSvc.List(c.Request.Context(), tc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pipelines})
}

func (s *Server) CreatePipeline(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req pipelinedomain.CreatePipelineRequest
	if !bindJSON(c, &req) {
		return
	}

	pipeline, err := s.pipelineSvc.Create(c.Request.Context(), tc, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": pipeline})
}

func (s *Server) GetDefaultPipeline(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	pipeline, err := s.pipelineSvc.GetDefault(c.Request.Context(), tc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pipeline})
}

func (s *Server) GetPipeline(c *gin.Context) {
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

	pipeline, err := s.pipelineSvc.Get(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pipeline})
}

func (s *Server) UpdatePipeline(c *gin.Context) {
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

	var req pipelinedomain.UpdatePipelineRequest
	if !bindJSON(c, &req) {
		return
	}

	pipeline, err := s.pipelineSvc.Update(c.Request.Context(), tc, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pipeline})
}

func (s *Server) DeletePipeline(c *gin.Context) {
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

	if err := s.pipelineSvc.Delete(c.Request.Context(), tc, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) SetPipelineMembers(c *gin.Context) {
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

	var req pipelinedomain.SetMembersRequest
	if !bindJSON(c, &req) {
		return
	}

	pipeline, err := s.pipelineSvc.SetMembers(c.Request.Context(), tc, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pipeline})
}

func (s *Server) CreateStage(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	pipelineID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req pipelinedomain.StageRequest
	if !bindJSON(c, &req) {
		return
	}

	stage, err := s.pipelineSvc.CreateStage(c.Request.Context(), tc, pipelineID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": stage})
}

func (s *Server) ReorderStages(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	pipelineID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req pipelinedomain.ReorderStagesRequest
	if !bindJSON(c, &req) {
		return
	}

	stages, err := s.pipelineSvc.ReorderStages(c.Request.Context(), tc, pipelineID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stages})
}

func (s *Server) UpdateStage(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	stageID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req pipelinedomain.UpdateStageRequest
	if !bindJSON(c, &req) {
		return
	}

	stage, err := s.pipelineSvc.UpdateStage(c.Request.Context(), tc, stageID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stage})
}

func (s *Server) DeleteStage(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	stageID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.pipelineSvc.DeleteStage(c.Request.Context(), tc, stageID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
