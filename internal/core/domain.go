package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Horizon is the fixed planning window in months. Allocations beyond it
// are not tracked.
const Horizon = 24

const (
	CostHard CostType = "hard"
	CostSoft CostType = "soft"
	CostTI   CostType = "ti"
)

const (
	MethodSCurve       Method = "s-curve"
	MethodStraightLine Method = "straight-line"
	MethodManual       Method = "manual"
)

type (
	// CostType classifies a budget category for reporting. It never
	// influences the distribution calculation.
	CostType string

	// Method selects the distribution shape for a category.
	Method string

	// DistributionParams tunes how a category amount is spread over the
	// horizon. ManualDistribution is only consulted for MethodManual.
	DistributionParams struct {
		Intensity          int             `json:"intensity"`
		StartMonth         int             `json:"startMonth"`
		Duration           int             `json:"duration"`
		ManualDistribution map[int]float64 `json:"manualDistribution,omitempty"`
	}

	// BudgetCategory is a single budget line item.
	BudgetCategory struct {
		ID       string             `json:"id"`
		Code     string             `json:"code"`
		Name     string             `json:"name"`
		Amount   float64            `json:"amount"`
		CostType CostType           `json:"costType"`
		Method   Method             `json:"method"`
		Params   DistributionParams `json:"params"`
	}
)

// Validation failures reject the whole mutation before any state is
// touched. Every cause wraps ErrValidation so callers can match the kind.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	ErrEmptyCode         = fmt.Errorf("%w: empty category code", ErrValidation)
	ErrEmptyName         = fmt.Errorf("%w: empty name", ErrValidation)
	ErrNegativeAmount    = fmt.Errorf("%w: negative amount", ErrValidation)
	ErrInvalidCostType   = fmt.Errorf("%w: invalid cost type", ErrValidation)
	ErrInvalidMethod     = fmt.Errorf("%w: invalid distribution method", ErrValidation)
	ErrInvalidIntensity  = fmt.Errorf("%w: intensity must be between 1 and 5", ErrValidation)
	ErrInvalidStartMonth = fmt.Errorf("%w: start month must be >= 0", ErrValidation)
	ErrInvalidDuration   = fmt.Errorf("%w: duration must be >= 1", ErrValidation)
	ErrEndBeforeStart    = fmt.Errorf("%w: end date before start date", ErrValidation)

	ErrCategoryNotFound = fmt.Errorf("%w: category", ErrNotFound)
	ErrScenarioNotFound = fmt.Errorf("%w: scenario", ErrNotFound)
)

func (ct CostType) IsValid() bool {
	switch ct {
	case CostHard, CostSoft, CostTI:
		return true
	default:
		return false
	}
}

func (m Method) IsValid() bool {
	switch m {
	case MethodSCurve, MethodStraightLine, MethodManual:
		return true
	default:
		return false
	}
}

func (p DistributionParams) Validate() error {
	if p.Intensity < 1 || p.Intensity > 5 {
		return ErrInvalidIntensity
	}
	if p.StartMonth < 0 {
		return ErrInvalidStartMonth
	}
	if p.Duration < 1 {
		return ErrInvalidDuration
	}
	return nil
}

func (c BudgetCategory) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return ErrEmptyCode
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Amount < 0 || math.IsNaN(c.Amount) || math.IsInf(c.Amount, 0) {
		return ErrNegativeAmount
	}
	if !c.CostType.IsValid() {
		return ErrInvalidCostType
	}
	if !c.Method.IsValid() {
		return ErrInvalidMethod
	}
	// Manual categories carry their own month map; the shape parameters
	// are still required to be coherent so a later method switch is safe.
	if err := c.Params.Validate(); err != nil {
		return err
	}
	return nil
}

// lastCategoryID makes time-derived ids monotonic even when two
// categories are created within the same nanosecond tick.
var lastCategoryID atomic.Int64

// NewCategoryID returns a unique, time-ordered category identifier.
func NewCategoryID() string {
	for {
		now := time.Now().UnixNano()
		last := lastCategoryID.Load()
		if now <= last {
			now = last + 1
		}
		if lastCategoryID.CompareAndSwap(last, now) {
			return "cat-" + strconv.FormatInt(now, 36)
		}
	}
}
