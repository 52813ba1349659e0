package core

import (
	"errors"
	"math"
	"testing"
)

func TestCreateScenarioValidation(t *testing.T) {
	p := testProject()
	if _, err := p.CreateScenario("  ", BaselineScenarioID); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty name: expected validation error, got %v", err)
	}
	if _, err := p.CreateScenario("B", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing base: expected not-found error, got %v", err)
	}
}

func TestCreateScenarioDeepCopies(t *testing.T) {
	p := testProject()
	if err := RecomputeProjections(p, "c1"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if err := p.RecordActual("c1", 0, 1000); err != nil {
		t.Fatalf("record actual: %v", err)
	}

	id, err := p.CreateScenario("B", BaselineScenarioID)
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}

	// Mutating B must not bleed into baseline.
	p.SwitchScenario(id)
	if err := p.RecordActual("c1", 0, 9999); err != nil {
		t.Fatalf("record actual on B: %v", err)
	}
	p.Scenarios[id].Projections["c1"][5] = -1

	base := p.Scenarios[BaselineScenarioID]
	if base.Actuals["c1"][0] != 1000 {
		t.Fatalf("baseline actual changed: %v", base.Actuals["c1"][0])
	}
	if base.Projections["c1"][5] == -1 {
		t.Fatalf("baseline projection changed through clone")
	}
}

func TestCreateScenarioDoesNotCopyLock(t *testing.T) {
	p := testProject()
	p.Scenarios[BaselineScenarioID].Locked = true
	id, err := p.CreateScenario("B", BaselineScenarioID)
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}
	if p.Scenarios[id].Locked {
		t.Fatalf("new scenario inherited lock flag")
	}
}

func TestSwitchScenarioUnknownIsNoOp(t *testing.T) {
	p := testProject()
	p.SwitchScenario("ghost")
	if p.CurrentScenario != BaselineScenarioID {
		t.Fatalf("current scenario moved to %q", p.CurrentScenario)
	}
}

func TestDeleteScenario(t *testing.T) {
	p := testProject()
	if err := p.DeleteScenario(BaselineScenarioID); !errors.Is(err, ErrValidation) {
		t.Fatalf("baseline delete: expected validation error, got %v", err)
	}
	if err := p.DeleteScenario("ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing delete: expected not-found error, got %v", err)
	}

	id, err := p.CreateScenario("B", BaselineScenarioID)
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}
	p.SwitchScenario(id)
	if err := p.DeleteScenario(id); err != nil {
		t.Fatalf("delete scenario: %v", err)
	}
	if p.CurrentScenario != BaselineScenarioID {
		t.Fatalf("current scenario not repaired after delete: %q", p.CurrentScenario)
	}
}

func TestRecordActualCoercesNonFinite(t *testing.T) {
	p := testProject()
	if err := p.RecordActual("c1", 3, math.NaN()); err != nil {
		t.Fatalf("record actual: %v", err)
	}
	if got := p.Scenarios[BaselineScenarioID].Actuals["c1"][3]; got != 0 {
		t.Fatalf("NaN not coerced to 0, got %v", got)
	}
	if err := p.RecordActual("c1", -1, 10); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative month: expected validation error, got %v", err)
	}
}

func TestSetAdjustmentOverwrites(t *testing.T) {
	p := testProject()
	if err := RecomputeProjections(p, "c1"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if err := p.SetAdjustment(BaselineScenarioID, "c1", 7000); err != nil {
		t.Fatalf("set adjustment: %v", err)
	}
	if got := p.Scenarios[BaselineScenarioID].Adjustments["c1"]; got != 7000 {
		t.Fatalf("adjustment = %v, want 7000", got)
	}
	if err := p.SetAdjustment("ghost", "c1", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not-found for scenario, got %v", err)
	}
	if err := p.SetAdjustment(BaselineScenarioID, "ghost", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not-found for category, got %v", err)
	}
}

func TestNormalizeRepairsDanglingCurrentScenario(t *testing.T) {
	p := testProject()
	p.CurrentScenario = "ghost"
	p.Normalize()
	if p.CurrentScenario != BaselineScenarioID {
		t.Fatalf("current scenario not repaired: %q", p.CurrentScenario)
	}
}
