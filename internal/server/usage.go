package server

import (
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/planfence/planfence/internal/owner"
	usagedomain "github.com/planfence/planfence/internal/usage/domain"
)

type limitUsage struct {
	LimitKey    string  `json:"limit_key"`
	Used        int64   `json:"used"`
	Limit       int64   `json:"limit"`
	Remaining   int64   `json:"remaining"`
	PercentUsed float64 `json:"percent_used"`
	Policy      string  `json:"policy"`
}

func ownerFromPath(c *gin.Context) (owner.Ref, error) {
	return owner.Parse(c.Param("kind"), c.Param("id"))
}

// OwnerUsage reports consumption across every limit on the owner's plan.
// Persistent limits with no counter registered in this process are omitted.
func (s *Server) OwnerUsage(c *gin.Context) {
	ref, err := ownerFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	p, err := s.assignments.EffectivePlanFor(c.Request.Context(), ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	keys := make([]string, 0, len(p.Limits))
	for key := range p.Limits {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]limitUsage, 0, len(keys))
	for _, key := range keys {
		cfg := p.Limits[key]
		used, err := s.usage.CurrentUsage(c.Request.Context(), ref, cfg)
		if errors.Is(err, usagedomain.ErrNoCounterRegistered) {
			continue
		}
		if err != nil {
			AbortWithError(c, err)
			return
		}
		remaining, err := s.usage.Remaining(c.Request.Context(), ref, cfg)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		pct, err := s.usage.PercentUsed(c.Request.Context(), ref, cfg)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		out = append(out, limitUsage{
			LimitKey:    key,
			Used:        used,
			Limit:       cfg.Cap,
			Remaining:   remaining,
			PercentUsed: pct,
			Policy:      string(cfg.Policy),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"owner":  ref,
			"plan":   p.Key,
			"limits": out,
		},
	})
}

// OwnerEvents lists the owner's recent lifecycle events, newest first.
func (s *Server) OwnerEvents(c *gin.Context) {
	ref, err := ownerFromPath(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		limit = n
	}

	evs, err := s.states.RecentEvents(c.Request.Context(), ref, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": evs})
}
