package core

import (
	"reflect"
	"testing"
)

func testProject() *Project {
	p := NewProject("p1", ProjectInfo{Name: "Tower"})
	p.Categories = append(p.Categories, BudgetCategory{
		ID:       "c1",
		Code:     "01-100",
		Name:     "Sitework",
		Amount:   12000,
		CostType: CostHard,
		Method:   MethodStraightLine,
		Params:   DistributionParams{Intensity: 3, StartMonth: 0, Duration: 12},
	})
	return p
}

func TestRecomputeProjectionsWritesEveryScenario(t *testing.T) {
	p := testProject()
	if _, err := p.CreateScenario("Aggressive", BaselineScenarioID); err != nil {
		t.Fatalf("create scenario: %v", err)
	}

	if err := RecomputeProjections(p, "c1"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	for id, sc := range p.Scenarios {
		if len(sc.Projections["c1"]) != 12 {
			t.Fatalf("scenario %s missing projection months: %v", id, sc.Projections["c1"])
		}
		if sc.Adjustments["c1"] != 12000 {
			t.Fatalf("scenario %s adjustment = %v, want 12000", id, sc.Adjustments["c1"])
		}
	}
}

func TestRecomputeProjectionsIdempotent(t *testing.T) {
	p := testProject()
	if err := RecomputeProjections(p, "c1"); err != nil {
		t.Fatalf("first recompute: %v", err)
	}
	first := make(map[string]map[int]float64)
	for id, sc := range p.Scenarios {
		first[id] = cloneMonths(sc.Projections["c1"])
	}

	if err := RecomputeProjections(p, "c1"); err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	for id, sc := range p.Scenarios {
		if !reflect.DeepEqual(first[id], sc.Projections["c1"]) {
			t.Fatalf("scenario %s projection changed on idempotent recompute", id)
		}
	}
}

func TestRecomputeProjectionsPreservesAdjustment(t *testing.T) {
	p := testProject()
	if err := RecomputeProjections(p, "c1"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	// Explicit user override must survive later recomputes.
	p.Scenarios[BaselineScenarioID].Adjustments["c1"] = 9500
	p.Categories[0].Amount = 15000
	if err := RecomputeProjections(p, "c1"); err != nil {
		t.Fatalf("recompute after edit: %v", err)
	}
	if got := p.Scenarios[BaselineScenarioID].Adjustments["c1"]; got != 9500 {
		t.Fatalf("adjustment overwritten: got %v, want 9500", got)
	}
}

func TestRecomputeProjectionsUnknownCategory(t *testing.T) {
	p := testProject()
	if err := RecomputeProjections(p, "nope"); err != ErrCategoryNotFound {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestRemoveCategoryDataCascades(t *testing.T) {
	p := testProject()
	if _, err := p.CreateScenario("B", BaselineScenarioID); err != nil {
		t.Fatalf("create scenario: %v", err)
	}
	if err := RecomputeProjections(p, "c1"); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if err := p.RecordActual("c1", 0, 1000); err != nil {
		t.Fatalf("record actual: %v", err)
	}

	RemoveCategoryData(p, "c1")
	for id, sc := range p.Scenarios {
		if _, ok := sc.Projections["c1"]; ok {
			t.Fatalf("scenario %s still has projections for deleted category", id)
		}
		if _, ok := sc.Actuals["c1"]; ok {
			t.Fatalf("scenario %s still has actuals for deleted category", id)
		}
		if _, ok := sc.Adjustments["c1"]; ok {
			t.Fatalf("scenario %s still has adjustment for deleted category", id)
		}
	}
}

func TestRecalculateAll(t *testing.T) {
	p := testProject()
	p.Categories = append(p.Categories, BudgetCategory{
		ID: "c2", Code: "02-200", Name: "Concrete", Amount: 8000,
		CostType: CostHard, Method: MethodSCurve,
		Params: DistributionParams{Intensity: 4, StartMonth: 2, Duration: 10},
	})
	RecalculateAll(p)
	base := p.Scenarios[BaselineScenarioID]
	if len(base.Projections["c1"]) == 0 || len(base.Projections["c2"]) == 0 {
		t.Fatalf("expected projections for both categories: %v", base.Projections)
	}
}
