package core

import "time"

// BaselineScenarioID is the reserved scenario key created with every
// project. It is always present and never deleted.
const BaselineScenarioID = "baseline"

type (
	// ProjectInfo carries display metadata. None of it participates in
	// the cashflow calculation.
	ProjectInfo struct {
		Name      string    `json:"name"`
		Client    string    `json:"client"`
		Location  string    `json:"location"`
		StartDate time.Time `json:"startDate"`
		EndDate   time.Time `json:"endDate"`
		Manager   string    `json:"manager"`
		Colors    []string  `json:"colors,omitempty"`
	}

	// Scenario is a named branch of the plan. Projections and actuals
	// are sparse month maps keyed by category id; scenarios reference
	// categories by id only and tolerate dangling ids (a missing entry
	// reads as empty).
	Scenario struct {
		Name        string                     `json:"name"`
		Projections map[string]map[int]float64 `json:"projections"`
		Actuals     map[string]map[int]float64 `json:"actuals"`
		Adjustments map[string]float64         `json:"adjustments"`
		Locked      bool                       `json:"locked"`
	}

	// Project is the aggregate root: it exclusively owns its categories
	// and scenarios. Category order is significant for display only.
	Project struct {
		ID              string               `json:"id"`
		Info            ProjectInfo          `json:"info"`
		Categories      []BudgetCategory     `json:"categories"`
		Scenarios       map[string]*Scenario `json:"scenarios"`
		CurrentScenario string               `json:"currentScenario"`
	}
)

func (pi ProjectInfo) Validate() error {
	if pi.Name == "" {
		return ErrEmptyName
	}
	if !pi.EndDate.IsZero() && !pi.StartDate.IsZero() && pi.EndDate.Before(pi.StartDate) {
		return ErrEndBeforeStart
	}
	return nil
}

// NewScenario returns an empty, unlocked scenario.
func NewScenario(name string) *Scenario {
	return &Scenario{
		Name:        name,
		Projections: make(map[string]map[int]float64),
		Actuals:     make(map[string]map[int]float64),
		Adjustments: make(map[string]float64),
	}
}

// Clone deep-copies the scenario so the copy shares no mutable state
// with the original. The lock flag is intentionally not carried over.
func (s *Scenario) Clone(name string) *Scenario {
	c := NewScenario(name)
	for catID, months := range s.Projections {
		c.Projections[catID] = cloneMonths(months)
	}
	for catID, months := range s.Actuals {
		c.Actuals[catID] = cloneMonths(months)
	}
	for catID, amount := range s.Adjustments {
		c.Adjustments[catID] = amount
	}
	return c
}

func cloneMonths(in map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(in))
	for m, v := range in {
		out[m] = v
	}
	return out
}

// NewProject creates a project with its baseline scenario already in
// place and selected.
func NewProject(id string, info ProjectInfo) *Project {
	return &Project{
		ID:   id,
		Info: info,
		Scenarios: map[string]*Scenario{
			BaselineScenarioID: NewScenario("Baseline"),
		},
		CurrentScenario: BaselineScenarioID,
	}
}

// Normalize repairs structural gaps after deserialization: a missing
// baseline, nil sub-maps, or a current-scenario pointer that no longer
// resolves.
func (p *Project) Normalize() {
	if p.Scenarios == nil {
		p.Scenarios = make(map[string]*Scenario)
	}
	if _, ok := p.Scenarios[BaselineScenarioID]; !ok {
		p.Scenarios[BaselineScenarioID] = NewScenario("Baseline")
	}
	for id, sc := range p.Scenarios {
		if sc == nil {
			sc = NewScenario(id)
			p.Scenarios[id] = sc
		}
		if sc.Projections == nil {
			sc.Projections = make(map[string]map[int]float64)
		}
		if sc.Actuals == nil {
			sc.Actuals = make(map[string]map[int]float64)
		}
		if sc.Adjustments == nil {
			sc.Adjustments = make(map[string]float64)
		}
	}
	if _, ok := p.Scenarios[p.CurrentScenario]; !ok {
		p.CurrentScenario = BaselineScenarioID
	}
}

// Category returns the category with the given id, or nil.
func (p *Project) Category(id string) *BudgetCategory {
	for i := range p.Categories {
		if p.Categories[i].ID == id {
			return &p.Categories[i]
		}
	}
	return nil
}
