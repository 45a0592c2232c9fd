package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	assignmentdomain "github.com/planfence/planfence/internal/assignment/domain"
)

type assignPlanRequest struct {
	PlanKey string `json:"plan_key"`
	Source  string `json:"source"`
}

func (s *Server) AssignPlan(c *gin.Context) {
	ref, err := ownerFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req assignPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	planKey := strings.TrimSpace(req.PlanKey)
	if planKey == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.assignments.Assign(c.Request.Context(), ref, planKey, assignmentdomain.Source(strings.TrimSpace(req.Source)))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ClearPlan(c *gin.Context) {
	ref, err := ownerFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.assignments.Clear(c.Request.Context(), ref); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
