package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// CreateScenario clones the base scenario into a new entry and returns
// its id. The copy is deep: later mutation of the new scenario never
// leaks into the base. The lock flag is not copied; a fresh scenario is
// always unlocked.
func (p *Project) CreateScenario(name, baseScenarioID string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: scenario name", ErrValidation)
	}
	base, ok := p.Scenarios[baseScenarioID]
	if !ok {
		return "", ErrScenarioNotFound
	}

	id := uuid.NewString()
	p.Scenarios[id] = base.Clone(name)
	return id, nil
}

// SwitchScenario moves the current-scenario pointer. An unknown id is a
// silent no-op so the pointer always resolves.
func (p *Project) SwitchScenario(scenarioID string) {
	if _, ok := p.Scenarios[scenarioID]; ok {
		p.CurrentScenario = scenarioID
	}
}

// DeleteScenario removes a non-baseline scenario. Deleting the current
// scenario falls back to baseline first.
func (p *Project) DeleteScenario(scenarioID string) error {
	if scenarioID == BaselineScenarioID {
		return fmt.Errorf("%w: baseline scenario cannot be deleted", ErrValidation)
	}
	if _, ok := p.Scenarios[scenarioID]; !ok {
		return ErrScenarioNotFound
	}
	if p.CurrentScenario == scenarioID {
		p.CurrentScenario = BaselineScenarioID
	}
	delete(p.Scenarios, scenarioID)
	return nil
}

// RecordActual writes an actual-spend entry into the current scenario,
// creating the per-category sub-map lazily. Non-finite amounts coerce
// to 0 rather than fail; textual input is coerced at the transport
// boundary before it reaches here.
func (p *Project) RecordActual(categoryID string, month int, amount float64) error {
	if month < 0 {
		return fmt.Errorf("%w: month index", ErrValidation)
	}
	sc, ok := p.Scenarios[p.CurrentScenario]
	if !ok {
		return ErrScenarioNotFound
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	if sc.Actuals[categoryID] == nil {
		sc.Actuals[categoryID] = make(map[int]float64)
	}
	sc.Actuals[categoryID][month] = amount
	return nil
}

// SetAdjustment records an explicit per-scenario override for a
// category's nominal amount. Unlike the first-seen initialization in
// RecomputeProjections, this always overwrites.
func (p *Project) SetAdjustment(scenarioID, categoryID string, amount float64) error {
	sc, ok := p.Scenarios[scenarioID]
	if !ok {
		return ErrScenarioNotFound
	}
	if p.Category(categoryID) == nil {
		return ErrCategoryNotFound
	}
	sc.Adjustments[categoryID] = amount
	return nil
}
