package core

// Summary is the project-level planned-vs-actual reduction for one
// scenario.
type Summary struct {
	TotalBudget    float64 `json:"totalBudget"`
	TotalProjected float64 `json:"totalProjected"`
	TotalActual    float64 `json:"totalActual"`
	TotalRemaining float64 `json:"totalRemaining"`
}

// Summarize reduces categories and the scenario's projections/actuals
// into totals. TotalBudget is scenario-independent. TotalRemaining is
// budget minus actual and may go negative: over budget is a valid,
// representable state, not an error.
func Summarize(p *Project, scenarioID string) Summary {
	var s Summary
	for i := range p.Categories {
		s.TotalBudget += p.Categories[i].Amount
	}

	if sc, ok := p.Scenarios[scenarioID]; ok {
		for i := range p.Categories {
			id := p.Categories[i].ID
			s.TotalProjected += sumMonths(sc.Projections[id])
			s.TotalActual += sumMonths(sc.Actuals[id])
		}
	}

	s.TotalRemaining = s.TotalBudget - s.TotalActual
	return s
}

func sumMonths(months map[int]float64) float64 {
	var sum float64
	for _, v := range months {
		sum += v
	}
	return sum
}
