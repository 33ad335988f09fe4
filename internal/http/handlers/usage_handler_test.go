package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/tbourn/go-reflect-backend/internal/llm"
)

func TestGetUsage(t *testing.T) {
	u := &fakeUsage{stats: llm.UsageStats{RequestCount: 4, ErrorCount: 1, TotalTokens: 900, EstimatedCostUSD: 0.00135}}
	r := newRouter(New(&fakeReportSvc{}, u, Options{}))

	w := do(t, r, http.MethodGet, "/llm/usage", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	var resp UsageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Usage.RequestCount != 4 || resp.Usage.TotalTokens != 900 || resp.Circuit.State != "closed" {
		t.Fatalf("unexpected usage body: %+v", resp)
	}
}

func TestResetUsage_RequiresAdminToken(t *testing.T) {
	u := &fakeUsage{stats: llm.UsageStats{RequestCount: 2}}

	disabled := newRouter(New(&fakeReportSvc{}, u, Options{}))
	if w := do(t, disabled, http.MethodPost, "/admin/llm/usage/reset", "", map[string]string{HeaderAdminToken: ""}); w.Code != http.StatusForbidden {
		t.Fatalf("reset without configured token: want 403, got %d", w.Code)
	}

	r := newRouter(New(&fakeReportSvc{}, u, Options{AdminToken: "adm"}))
	if w := do(t, r, http.MethodPost, "/admin/llm/usage/reset", "", map[string]string{HeaderAdminToken: "nope"}); w.Code != http.StatusForbidden {
		t.Fatalf("wrong token: want 403, got %d", w.Code)
	}
	if u.resets != 0 {
		t.Fatalf("reset must not run on forbidden requests")
	}
	if w := do(t, r, http.MethodPost, "/admin/llm/usage/reset", "", map[string]string{HeaderAdminToken: "adm"}); w.Code != http.StatusNoContent {
		t.Fatalf("want 204, got %d", w.Code)
	}
	if u.resets != 1 || u.stats.RequestCount != 0 {
		t.Fatalf("usage not reset: %+v", u.stats)
	}
}
