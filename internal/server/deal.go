package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	dealdomain "github.com/smallbiznis/dealflow/internal/deal/domain"
)

func (s *Server) ListDeals(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req dealdomain.ListRequest
	if !bindQuery(c, &req) {
		return
	}

	resp, err := s.dealSvc.List(c.Request.Context(), tc, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Deals, "meta": resp.Meta})
}

func (s *Server) CreateDeal(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req dealdomain.CreateRequest
	if !bindJSON(c, &req) {
		return
	}

	deal, err := s.dealSvc.Create(c.Request.Context(), tc, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": deal})
}

func (s *Server) DealStats(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	stats, err := s.dealSvc.Stats(c.Request.Context(), tc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) DealForecast(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	forecast, err := s.dealSvc.Forecast(c.Request.Context(), tc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": forecast})
}

func (s *Server) ListDealsByLead(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	leadID, err := parseIDParam(c, "leadId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	deals, err := s.dealSvc.ListByLead(c.Request.Context(), tc, leadID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": deals})
}

func (s *Server) DealBoard(c *gin.Context) {
	tc, ok := tenantFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	pipelineID, err := parseIDParam(c, "pipelineId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	board, err := s.dealSvc.Board(c.Request.Context(), tc, pipelineID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": board})
}

func (s *Server) GetDeal(c *gin.Context) {
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

	deal, err := s.dealSvc.Get(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": deal})
}

func (s *Server) UpdateDeal(c *gin.Context) {
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

	var req dealdomain.UpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	deal, err := s.dealSvc.Update(c.Request.Context(), tc, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": deal})
}

func (s *Server) DeleteDeal(c *gin.Context) {
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

	if err := s.dealSvc.Delete(c.Request.Context(), tc, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) MoveDeal(c *gin.Context) {
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
	c.Set(contextDealIDKey, id.String())

	var req dealdomain.MoveRequest
	if !bindJSON(c, &req) {
		return
	}

	deal, err := s.dealSvc.Move(c.Request.Context(), tc, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": deal})
}

func (s *Server) AssignDeal(c *gin.Context) {
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

	var req dealdomain.AssignRequest
	if !bindJSON(c, &req) {
		return
	}

	deal, err := s.dealSvc.Assign(c.Request.Context(), tc, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": deal})
}

func (s *Server) DealHistory(c *gin.Context) {
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

	events, err := s.dealSvc.History(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": events})
}

func (s *Server) RecordDealActivity(c *gin.Context) {
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

	var req dealdomain.ActivityRequest
	if !bindJSON(c, &req) {
		return
	}

	event, err := s.dealSvc.RecordActivity(c.Request.Context(), tc, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": event})
}

func (s *Server) AddDealProduct(c *gin.Context) {
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

	var req dealdomain.AddProductRequest
	if !bindJSON(c, &req) {
		return
	}

	change, err := s.dealSvc.AddProduct(c.Request.Context(), tc, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": change})
}

func (s *Server) UpdateDealProduct(c *gin.Context) {
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
	itemID, err := parseIDParam(c, "itemId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req dealdomain.UpdateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	change, err := s.dealSvc.UpdateProduct(c.Request.Context(), tc, id, itemID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": change})
}

func (s *Server) RemoveDealProduct(c *gin.Context) {
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
	itemID, err := parseIDParam(c, "itemId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	change, err := s.dealSvc.RemoveProduct(c.Request.Context(), tc, id, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": change})
}
