package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	enforcementdomain "github.com/planfence/planfence/internal/enforcement/domain"
	"github.com/planfence/planfence/internal/owner"
)

type evaluateRequest struct {
	Owner          ownerRef `json:"owner"`
	LimitKey       string   `json:"limit_key"`
	Amount         int64    `json:"amount"`
	SystemOverride bool     `json:"system_override"`
}

type ownerRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (r evaluateRequest) toDomain() (enforcementdomain.EvaluateRequest, error) {
	ref, err := owner.Parse(strings.TrimSpace(r.Owner.Kind), strings.TrimSpace(r.Owner.ID))
	if err != nil {
		return enforcementdomain.EvaluateRequest{}, err
	}
	key := strings.TrimSpace(r.LimitKey)
	if key == "" {
		return enforcementdomain.EvaluateRequest{}, ErrInvalidRequest
	}
	return enforcementdomain.EvaluateRequest{
		Owner:          ref,
		LimitKey:       key,
		Amount:         r.Amount,
		SystemOverride: r.SystemOverride,
	}, nil
}

func (s *Server) Evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	dreq, err := req.toDomain()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.enforcer.Evaluate(c.Request.Context(), dreq)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res, "allowed": res.Allowed()})
}

func (s *Server) Consume(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	dreq, err := req.toDomain()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	res, err := s.enforcer.Consume(c.Request.Context(), dreq)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res, "allowed": res.Allowed()})
}
