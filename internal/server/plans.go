package server

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/planfence/planfence/internal/plan"
)

type planResponse struct {
	Key      string          `json:"key"`
	Name     string          `json:"name"`
	Default  bool            `json:"default"`
	Limits   []limitResponse `json:"limits"`
	Features []string        `json:"features"`
}

type limitResponse struct {
	Key               string    `json:"key"`
	Cap               int64     `json:"cap"`
	Per               string    `json:"per,omitempty"`
	Policy            string    `json:"policy"`
	GraceSeconds      float64   `json:"grace_seconds,omitempty"`
	WarningThresholds []float64 `json:"warning_thresholds,omitempty"`
}

func (s *Server) ListPlans(c *gin.Context) {
	plans := s.catalog.Plans()
	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func toPlanResponse(p plan.Plan) planResponse {
	limits := make([]limitResponse, 0, len(p.Limits))
	for _, cfg := range p.Limits {
		limits = append(limits, limitResponse{
			Key:               cfg.Key,
			Cap:               cfg.Cap,
			Per:               string(cfg.Per),
			Policy:            string(cfg.Policy),
			GraceSeconds:      cfg.Grace.Seconds(),
			WarningThresholds: cfg.WarningThresholds,
		})
	}
	sort.Slice(limits, func(i, j int) bool { return limits[i].Key < limits[j].Key })

	return planResponse{
		Key:      p.Key,
		Name:     p.Name,
		Default:  p.Default,
		Limits:   limits,
		Features: p.Features,
	}
}
