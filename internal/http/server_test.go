package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cashplan/internal/core"
	"cashplan/internal/identity"
	"cashplan/internal/planner"
	"cashplan/internal/store/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *planner.Planner) {
	t.Helper()
	pl := planner.New(memory.New(), nil, planner.WithSaveDebounce(20*time.Millisecond))
	t.Cleanup(pl.Close)

	s := NewServer(":0", pl, identity.HeaderProvider{DefaultRole: identity.RoleEditor}, nil)
	ts := httptest.NewServer(s.Handler)
	t.Cleanup(ts.Close)
	return ts, pl
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func createProject(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/projects",
		map[string]any{"name": "Tower", "client": "Acme"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create project status = %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return out["id"]
}

func createCategory(t *testing.T, ts *httptest.Server, projectID string) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/projects/"+projectID+"/categories", map[string]any{
		"code": "01-100", "name": "Sitework", "amount": 12000,
		"costType": "hard", "method": "straight-line",
		"params": map[string]any{"intensity": 3, "startMonth": 0, "duration": 12},
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create category status = %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode category response: %v", err)
	}
	return out["id"]
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		resp := doJSON(t, http.MethodGet, ts.URL+path, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d", path, resp.StatusCode)
		}
	}
}

func TestProjectLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)
	id := createProject(t, ts)

	resp := doJSON(t, http.MethodGet, ts.URL+"/projects/"+id, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var proj core.Project
	if err := json.NewDecoder(resp.Body).Decode(&proj); err != nil {
		t.Fatalf("decode project: %v", err)
	}
	if proj.Info.Name != "Tower" || proj.CurrentScenario != core.BaselineScenarioID {
		t.Fatalf("unexpected project: %+v", proj)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects", nil, nil)
	var list []projectSummaryItem
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("unexpected list: %+v", list)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/nope", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project status = %d", resp.StatusCode)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/projects", map[string]any{"client": "Acme"}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestDeleteProjectRequiresAdmin(t *testing.T) {
	ts, _ := newTestServer(t)
	id := createProject(t, ts)

	resp := doJSON(t, http.MethodDelete, ts.URL+"/projects/"+id, nil,
		map[string]string{"X-User-Id": "sam", "X-User-Role": identity.RoleEditor})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("editor delete status = %d, want 403", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/projects/"+id, nil,
		map[string]string{"X-User-Id": "sam", "X-User-Role": identity.RoleAdmin})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("admin delete status = %d, want 204", resp.StatusCode)
	}
}

func TestCategoryEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	id := createProject(t, ts)
	catID := createCategory(t, ts, id)

	resp := doJSON(t, http.MethodPut, ts.URL+"/projects/"+id+"/categories/"+catID, map[string]any{
		"code": "01-100", "name": "Sitework", "amount": 24000,
		"costType": "hard", "method": "straight-line",
		"params": map[string]any{"intensity": 3, "startMonth": 0, "duration": 12},
	}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+id+"/summary", nil, nil)
	var sum core.Summary
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if sum.TotalBudget != 24000 {
		t.Fatalf("budget = %v, want 24000", sum.TotalBudget)
	}

	// Negative amount is a validation error, not a 500.
	resp = doJSON(t, http.MethodPost, ts.URL+"/projects/"+id+"/categories", map[string]any{
		"code": "01-200", "name": "Concrete", "amount": -5,
		"costType": "hard", "method": "straight-line",
		"params": map[string]any{"intensity": 3, "startMonth": 0, "duration": 12},
	}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid category status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/projects/"+id+"/categories/"+catID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete category status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodDelete, ts.URL+"/projects/"+id+"/categories/"+catID, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}
}

func TestActualCoercesUnparseableAmount(t *testing.T) {
	ts, pl := newTestServer(t)
	id := createProject(t, ts)
	catID := createCategory(t, ts, id)

	for _, amount := range []any{"garbage", "250.5", 100.0} {
		resp := doJSON(t, http.MethodPut, ts.URL+"/projects/"+id+"/actuals", map[string]any{
			"categoryId": catID, "month": 0, "amount": amount,
		}, nil)
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("actual (%v) status = %d", amount, resp.StatusCode)
		}
	}

	proj, err := pl.Project(id)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	// Last write wins: the numeric 100 overwrote earlier entries.
	got := proj.Scenarios[core.BaselineScenarioID].Actuals[catID][0]
	if got != 100 {
		t.Fatalf("actual = %v, want 100", got)
	}

	// Negative month is rejected.
	resp := doJSON(t, http.MethodPut, ts.URL+"/projects/"+id+"/actuals", map[string]any{
		"categoryId": catID, "month": -1, "amount": 10,
	}, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("negative month status = %d", resp.StatusCode)
	}
}

func TestScenarioEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	id := createProject(t, ts)
	createCategory(t, ts, id)

	resp := doJSON(t, http.MethodPost, ts.URL+"/projects/"+id+"/scenarios",
		map[string]any{"name": "Aggressive"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create scenario status = %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	scID := out["id"]

	resp = doJSON(t, http.MethodPost, ts.URL+"/projects/"+id+"/scenarios/"+scID+"/switch", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("switch status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+id+"/projections", nil, nil)
	var pr projectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		t.Fatalf("decode projections: %v", err)
	}
	if pr.ScenarioID != scID || pr.Horizon != core.Horizon {
		t.Fatalf("unexpected projections response: scenario=%q horizon=%d", pr.ScenarioID, pr.Horizon)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/projects/"+id+"/projections?scenario=ghost", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("ghost scenario status = %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/projects/"+id+"/scenarios/"+core.BaselineScenarioID, nil, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("baseline delete status = %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodDelete, ts.URL+"/projects/"+id+"/scenarios/"+scID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("scenario delete status = %d", resp.StatusCode)
	}
}

func TestExportImportEndpoints(t *testing.T) {
	ts, _ := newTestServer(t)
	id := createProject(t, ts)
	createCategory(t, ts, id)

	resp := doJSON(t, http.MethodGet, ts.URL+"/projects/"+id+"/export", nil,
		map[string]string{"X-User-Id": "alex"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	var envelope map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope["exportedBy"] != "alex" || envelope["version"] != "1" {
		t.Fatalf("unexpected envelope metadata: %v", envelope)
	}

	// Import into a fresh server.
	other, _ := newTestServer(t)
	resp = doJSON(t, http.MethodPost, other.URL+"/projects/import", envelope, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("import status = %d", resp.StatusCode)
	}
	var imported map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&imported); err != nil {
		t.Fatalf("decode import response: %v", err)
	}
	resp = doJSON(t, http.MethodGet, other.URL+"/projects/"+imported["id"], nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("imported project status = %d", resp.StatusCode)
	}

	// Wrong version is refused.
	envelope["version"] = "99"
	resp = doJSON(t, http.MethodPost, other.URL+"/projects/import", envelope, nil)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad version status = %d", resp.StatusCode)
	}
}

func TestCoerceAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{`42`, 42},
		{`42.5`, 42.5},
		{`"17.25"`, 17.25},
		{`"not a number"`, 0},
		{`null`, 0},
		{`{"a":1}`, 0},
	}
	for _, tc := range cases {
		if got := coerceAmount(json.RawMessage(tc.raw)); got != tc.want {
			t.Errorf("coerceAmount(%s) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := newRateLimiter()
	defer rl.stop()

	for i := 0; i < 120; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d refused within budget", i)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Fatal("request over budget allowed")
	}
	if !rl.allow("10.0.0.2") {
		t.Fatal("separate client throttled")
	}
}

func TestReadyReflectsPersistenceHealth(t *testing.T) {
	ts, pl := newTestServer(t)

	pl.ApplyRemote(nil, fmt.Errorf("backend unreachable"))
	resp := doJSON(t, http.MethodGet, ts.URL+"/readyz", nil, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("degraded readyz status = %d", resp.StatusCode)
	}
}
