package core

// RecomputeProjections recalculates the month mapping for one category
// across every scenario, replacing any prior projection for that id
// (full replace, not merge). The scenario adjustment for the category is
// initialized to the nominal amount the first time the category is seen
// and never overwritten afterwards.
//
// The call is idempotent: with unchanged category state it produces
// identical mappings on every invocation.
func RecomputeProjections(p *Project, categoryID string) error {
	cat := p.Category(categoryID)
	if cat == nil {
		return ErrCategoryNotFound
	}
	for _, sc := range p.Scenarios {
		sc.Projections[categoryID] = Distribute(cat.Amount, cat.Method, cat.Params, Horizon)
		if _, ok := sc.Adjustments[categoryID]; !ok {
			sc.Adjustments[categoryID] = cat.Amount
		}
	}
	return nil
}

// RecalculateAll recomputes projections for every category. Categories
// are independent, so this is pure batch composition.
func RecalculateAll(p *Project) {
	for i := range p.Categories {
		// Category existence is guaranteed while iterating.
		_ = RecomputeProjections(p, p.Categories[i].ID)
	}
}

// RemoveCategoryData cascades a category deletion: the id is dropped
// from projections, actuals, and adjustments of every scenario.
func RemoveCategoryData(p *Project, categoryID string) {
	for _, sc := range p.Scenarios {
		delete(sc.Projections, categoryID)
		delete(sc.Actuals, categoryID)
		delete(sc.Adjustments, categoryID)
	}
}
