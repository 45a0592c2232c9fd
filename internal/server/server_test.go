package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	assignmentdomain "github.com/planfence/planfence/internal/assignment/domain"
	"github.com/planfence/planfence/internal/config"
	enforcementdomain "github.com/planfence/planfence/internal/enforcement/domain"
	"github.com/planfence/planfence/internal/owner"
	"github.com/planfence/planfence/internal/plan"
)

type fakeEnforcer struct {
	res          enforcementdomain.Result
	err          error
	evaluateReqs []enforcementdomain.EvaluateRequest
	consumeReqs  []enforcementdomain.EvaluateRequest
}

func (f *fakeEnforcer) Evaluate(ctx context.Context, req enforcementdomain.EvaluateRequest) (enforcementdomain.Result, error) {
	f.evaluateReqs = append(f.evaluateReqs, req)
	return f.res, f.err
}

func (f *fakeEnforcer) Consume(ctx context.Context, req enforcementdomain.EvaluateRequest) (enforcementdomain.Result, error) {
	f.consumeReqs = append(f.consumeReqs, req)
	return f.res, f.err
}

func (f *fakeEnforcer) RequireFeature(ctx context.Context, ref owner.Ref, feature string) error {
	return f.err
}

type fakeAssignments struct {
	assignErr error
	assigned  []string
	cleared   int
	plan      plan.Plan
}

func (f *fakeAssignments) Assign(ctx context.Context, ref owner.Ref, planKey string, source assignmentdomain.Source) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assigned = append(f.assigned, planKey)
	return nil
}

func (f *fakeAssignments) Clear(ctx context.Context, ref owner.Ref) error {
	f.cleared++
	return nil
}

func (f *fakeAssignments) EffectivePlanFor(ctx context.Context, ref owner.Ref) (plan.Plan, error) {
	return f.plan, nil
}

type fakeCounter struct {
	used int64
}

func (f *fakeCounter) CurrentUsage(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig) (int64, error) {
	return f.used, nil
}

func (f *fakeCounter) Remaining(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig) (int64, error) {
	if cfg.Unlimited() {
		return plan.Unlimited, nil
	}
	if f.used >= cfg.Cap {
		return 0, nil
	}
	return cfg.Cap - f.used, nil
}

func (f *fakeCounter) PercentUsed(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig) (float64, error) {
	return 0, nil
}

func (f *fakeCounter) Record(ctx context.Context, ref owner.Ref, cfg plan.LimitConfig, amount int64) error {
	return nil
}

func newTestServer(t *testing.T, enforcer *fakeEnforcer, assignments *fakeAssignments) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	catalog, err := plan.NewCatalog(plan.DefaultPlans())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if assignments.plan.Key == "" {
		assignments.plan = catalog.Default()
	}

	engine := NewEngine(zap.NewNop())
	NewServer(ServerParams{
		Gin:         engine,
		Cfg:         config.Config{},
		Log:         zap.NewNop(),
		Enforcer:    enforcer,
		Usage:       &fakeCounter{used: 2},
		Catalog:     catalog,
		Assignments: assignments,
	})
	return engine
}

func TestEvaluateEndpoint(t *testing.T) {
	enforcer := &fakeEnforcer{res: enforcementdomain.Result{
		State:    enforcementdomain.StateWithin,
		LimitKey: "projects",
		Owner:    owner.Ref{Kind: "org", ID: "1"},
	}}
	engine := newTestServer(t, enforcer, &fakeAssignments{})

	body := bytes.NewBufferString(`{"owner":{"kind":"org","id":"1"},"limit_key":"projects","amount":1}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", body)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Allowed {
		t.Fatal("within result should report allowed")
	}
	if len(enforcer.evaluateReqs) != 1 || enforcer.evaluateReqs[0].LimitKey != "projects" {
		t.Fatalf("unexpected evaluate calls: %+v", enforcer.evaluateReqs)
	}
}

func TestEvaluateEndpointRejectsBadBody(t *testing.T) {
	engine := newTestServer(t, &fakeEnforcer{}, &fakeAssignments{})

	for _, body := range []string{
		`not json`,
		`{"owner":{"kind":"","id":"1"},"limit_key":"projects"}`,
		`{"owner":{"kind":"org","id":"1"},"limit_key":""}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, w.Code)
		}
	}
}

func TestConsumeEndpoint(t *testing.T) {
	enforcer := &fakeEnforcer{res: enforcementdomain.Result{
		State:    enforcementdomain.StateBlocked,
		LimitKey: "projects",
		Owner:    owner.Ref{Kind: "org", ID: "1"},
	}}
	engine := newTestServer(t, enforcer, &fakeAssignments{})

	body := bytes.NewBufferString(`{"owner":{"kind":"org","id":"1"},"limit_key":"projects"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/consume", body)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Allowed {
		t.Fatal("blocked result should not report allowed")
	}
	if len(enforcer.consumeReqs) != 1 {
		t.Fatalf("unexpected consume calls: %+v", enforcer.consumeReqs)
	}
}

func TestListPlansEndpoint(t *testing.T) {
	engine := newTestServer(t, &fakeEnforcer{}, &fakeAssignments{})

	req := httptest.NewRequest(http.MethodGet, "/v1/plans", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Data []planResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("plan count = %d, want 2", len(resp.Data))
	}
	if resp.Data[0].Key != "free" || !resp.Data[0].Default {
		t.Fatalf("unexpected first plan: %+v", resp.Data[0])
	}
}

func TestAssignPlanEndpoint(t *testing.T) {
	assignments := &fakeAssignments{}
	engine := newTestServer(t, &fakeEnforcer{}, assignments)

	body := bytes.NewBufferString(`{"plan_key":"pro","source":"admin"}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/owners/org/1/plan", body)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204, body %s", w.Code, w.Body.String())
	}
	if len(assignments.assigned) != 1 || assignments.assigned[0] != "pro" {
		t.Fatalf("unexpected assigns: %v", assignments.assigned)
	}
}

func TestAssignUnknownPlanMapsToNotFound(t *testing.T) {
	assignments := &fakeAssignments{assignErr: plan.ErrPlanNotFound}
	engine := newTestServer(t, &fakeEnforcer{}, assignments)

	body := bytes.NewBufferString(`{"plan_key":"enterprise"}`)
	req := httptest.NewRequest(http.MethodPut, "/v1/owners/org/1/plan", body)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestOwnerUsageEndpoint(t *testing.T) {
	engine := newTestServer(t, &fakeEnforcer{}, &fakeAssignments{})

	req := httptest.NewRequest(http.MethodGet, "/v1/owners/org/1/usage", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Data struct {
			Plan   string       `json:"plan"`
			Limits []limitUsage `json:"limits"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Plan != "free" {
		t.Fatalf("plan = %q, want free", resp.Data.Plan)
	}
	if len(resp.Data.Limits) == 0 {
		t.Fatal("expected at least one limit entry")
	}
}
