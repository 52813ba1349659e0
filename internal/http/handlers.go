package http

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"

	"cashplan/internal/core"
	"cashplan/internal/export"
	applog "cashplan/internal/log"
)

type projectSummaryItem struct {
	ID              string           `json:"id"`
	Info            core.ProjectInfo `json:"info"`
	CurrentScenario string           `json:"currentScenario"`
	Categories      int              `json:"categories"`
	Scenarios       int              `json:"scenarios"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	projects := s.planner.Projects()
	out := make([]projectSummaryItem, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectSummaryItem{
			ID:              p.ID,
			Info:            p.Info,
			CurrentScenario: p.CurrentScenario,
			Categories:      len(p.Categories),
			Scenarios:       len(p.Scenarios),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var info core.ProjectInfo
	if !decodeBody(w, r, &info) {
		return
	}
	id, err := s.planner.CreateProject(r.Context(), info)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.planner.Project(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	user := s.users.UserFromRequest(r)
	if !user.CanDeleteProject() {
		s.logger.WarnContext(r.Context(), "Project delete refused",
			applog.FieldUserID, user.ID,
			applog.FieldRole, user.Role,
			applog.FieldProjectID, r.PathValue("id"))
		writeError(w, http.StatusForbidden, "project deletion requires the admin role")
		return
	}
	if err := s.planner.DeleteProject(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoryRequest struct {
	Code     string                  `json:"code"`
	Name     string                  `json:"name"`
	Amount   float64                 `json:"amount"`
	CostType core.CostType           `json:"costType"`
	Method   core.Method             `json:"method"`
	Params   core.DistributionParams `json:"params"`
}

func (cr categoryRequest) toCategory(id string) core.BudgetCategory {
	return core.BudgetCategory{
		ID:       id,
		Code:     cr.Code,
		Name:     cr.Name,
		Amount:   cr.Amount,
		CostType: cr.CostType,
		Method:   cr.Method,
		Params:   cr.Params,
	}
}

func (s *Server) handleAddCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := s.planner.AddCategory(r.Context(), r.PathValue("id"), req.toCategory(""))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	err := s.planner.UpdateCategory(r.Context(), r.PathValue("id"), req.toCategory(r.PathValue("catID")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.planner.DeleteCategory(r.Context(), r.PathValue("id"), r.PathValue("catID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string `json:"name"`
		BaseScenarioID string `json:"baseScenarioId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.BaseScenarioID == "" {
		req.BaseScenarioID = core.BaselineScenarioID
	}
	id, err := s.planner.CreateScenario(r.Context(), r.PathValue("id"), req.Name, req.BaseScenarioID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	err := s.planner.DeleteScenario(r.Context(), r.PathValue("id"), r.PathValue("scenarioID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSwitchScenario(w http.ResponseWriter, r *http.Request) {
	err := s.planner.SwitchScenario(r.Context(), r.PathValue("id"), r.PathValue("scenarioID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type actualRequest struct {
	CategoryID string          `json:"categoryId"`
	Month      int             `json:"month"`
	Amount     json.RawMessage `json:"amount"`
}

// coerceAmount turns whatever the client sent into a usable float.
// Non-numeric input becomes zero rather than an error; month entries in
// the grid are never rejected for a bad keystroke.
func coerceAmount(raw json.RawMessage) float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var inner float64
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return inner
		}
	}
	return 0
}

func (s *Server) handleRecordActual(w http.ResponseWriter, r *http.Request) {
	var req actualRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount := coerceAmount(req.Amount)
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	err := s.planner.RecordActual(r.Context(), r.PathValue("id"), req.CategoryID, req.Month, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetAdjustment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string  `json:"scenarioId"`
		CategoryID string  `json:"categoryId"`
		Amount     float64 `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ScenarioID == "" {
		req.ScenarioID = core.BaselineScenarioID
	}
	err := s.planner.SetAdjustment(r.Context(), r.PathValue("id"), req.ScenarioID, req.CategoryID, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.planner.Summary(r.PathValue("id"), r.URL.Query().Get("scenario"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type projectionsResponse struct {
	ScenarioID  string                     `json:"scenarioId"`
	Horizon     int                        `json:"horizon"`
	Projections map[string]map[int]float64 `json:"projections"`
	Actuals     map[string]map[int]float64 `json:"actuals"`
}

func (s *Server) handleProjections(w http.ResponseWriter, r *http.Request) {
	p, err := s.planner.Project(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	scenarioID := r.URL.Query().Get("scenario")
	if scenarioID == "" {
		scenarioID = p.CurrentScenario
	}
	sc, ok := p.Scenarios[scenarioID]
	if !ok {
		writeDomainError(w, core.ErrScenarioNotFound)
		return
	}
	writeJSON(w, http.StatusOK, projectionsResponse{
		ScenarioID:  scenarioID,
		Horizon:     core.Horizon,
		Projections: sc.Projections,
		Actuals:     sc.Actuals,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	user := s.users.UserFromRequest(r)
	env, err := s.planner.Export(r.PathValue("id"), user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	data, err := env.Marshal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"project-"+env.ProjectData.Project.ID+".json\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 8<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid export envelope")
		return
	}
	env, err := export.ParseEnvelope(data)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedVersion) {
			writeError(w, http.StatusUnprocessableEntity, "unsupported export version")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid export envelope")
		return
	}
	id, err := s.planner.Import(r.Context(), env)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}
