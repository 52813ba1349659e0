package core

import (
	"math"
	"testing"
)

func TestStraightLineSumsToAmount(t *testing.T) {
	cases := []struct {
		amount   float64
		duration int
	}{
		{12000, 12},
		{100, 1},
		{0, 6},
		{999.99, 7},
	}
	for i, tc := range cases {
		params := DistributionParams{Intensity: 3, StartMonth: 0, Duration: tc.duration}
		out := Distribute(tc.amount, MethodStraightLine, params, Horizon)
		if len(out) != tc.duration {
			t.Fatalf("case %d expected %d months, got %d", i, tc.duration, len(out))
		}
		monthly := tc.amount / float64(tc.duration)
		var sum float64
		for m, v := range out {
			if math.Abs(v-monthly) > 1e-9 {
				t.Fatalf("case %d month %d = %v, want %v", i, m, v, monthly)
			}
			sum += v
		}
		if math.Abs(sum-tc.amount) > 1e-9 {
			t.Fatalf("case %d sum = %v, want %v", i, sum, tc.amount)
		}
	}
}

func TestSCurveSumsToAmount(t *testing.T) {
	for _, intensity := range []int{1, 2, 3, 4, 5} {
		for _, duration := range []int{1, 6, 12, 24} {
			params := DistributionParams{Intensity: intensity, StartMonth: 0, Duration: duration}
			out := Distribute(10000, MethodSCurve, params, Horizon)
			var sum float64
			for _, v := range out {
				sum += v
			}
			if rel := math.Abs(sum-10000) / 10000; rel > 1e-6 {
				t.Fatalf("intensity=%d duration=%d sum=%v, relative error %v", intensity, duration, sum, rel)
			}
		}
	}
}

func TestSCurveSinglePeakShape(t *testing.T) {
	// Default shape: monthly values must rise to a single peak and
	// never rise again after it.
	params := DistributionParams{Intensity: 3, StartMonth: 0, Duration: 12}
	out := Distribute(12000, MethodSCurve, params, Horizon)
	if len(out) != 12 {
		t.Fatalf("expected 12 months, got %d", len(out))
	}

	peaked := false
	for m := 1; m < 12; m++ {
		prev, cur := out[m-1], out[m]
		if cur < prev {
			peaked = true
		} else if peaked && cur > prev {
			t.Fatalf("second rise at month %d: prev=%v cur=%v", m, prev, cur)
		}
	}
}

func TestHorizonTruncation(t *testing.T) {
	for _, method := range []Method{MethodStraightLine, MethodSCurve} {
		params := DistributionParams{Intensity: 3, StartMonth: 18, Duration: 12}
		out := Distribute(6000, method, params, Horizon)
		var sum float64
		for m, v := range out {
			if m >= Horizon {
				t.Fatalf("%s produced month %d past horizon", method, m)
			}
			sum += v
		}
		if sum > 6000+1e-9 {
			t.Fatalf("%s truncated sum %v exceeds amount", method, sum)
		}
		// Normalization happens before truncation, so a crossing
		// distribution under-delivers.
		if sum >= 6000 {
			t.Fatalf("%s expected partial delivery, got %v", method, sum)
		}
	}
}

func TestManualReturnsMapVerbatim(t *testing.T) {
	manual := map[int]float64{0: 500, 7: 250, 30: 99}
	params := DistributionParams{Intensity: 3, StartMonth: 0, Duration: 1, ManualDistribution: manual}
	out := Distribute(100, MethodManual, params, Horizon)
	if len(out) != len(manual) {
		t.Fatalf("expected %d entries, got %d", len(manual), len(out))
	}
	for m, v := range manual {
		if out[m] != v {
			t.Fatalf("month %d = %v, want %v", m, out[m], v)
		}
	}
	// The result is a copy, not the caller's map.
	out[0] = 1
	if manual[0] != 500 {
		t.Fatalf("manual map mutated through result")
	}
}

func TestManualWithoutMapIsEmpty(t *testing.T) {
	params := DistributionParams{Intensity: 3, StartMonth: 0, Duration: 1}
	out := Distribute(100, MethodManual, params, Horizon)
	if len(out) != 0 {
		t.Fatalf("expected empty mapping, got %v", out)
	}
}

func TestUnknownMethodFallsBackToStraightLine(t *testing.T) {
	params := DistributionParams{Intensity: 3, StartMonth: 0, Duration: 4}
	want := Distribute(400, MethodStraightLine, params, Horizon)
	got := Distribute(400, Method("bell-curve"), params, Horizon)
	if len(got) != len(want) {
		t.Fatalf("fallback mismatch: got %v want %v", got, want)
	}
	for m, v := range want {
		if got[m] != v {
			t.Fatalf("fallback month %d = %v, want %v", m, got[m], v)
		}
	}
}

func TestMalformedParamsYieldEmptyMapping(t *testing.T) {
	cases := []struct {
		name    string
		amount  float64
		method  Method
		params  DistributionParams
		horizon int
	}{
		{"zero duration", 100, MethodStraightLine, DistributionParams{Duration: 0}, Horizon},
		{"negative duration", 100, MethodSCurve, DistributionParams{Intensity: 3, Duration: -2}, Horizon},
		{"negative amount", -5, MethodStraightLine, DistributionParams{Duration: 3}, Horizon},
		{"nan amount", math.NaN(), MethodSCurve, DistributionParams{Intensity: 3, Duration: 3}, Horizon},
		{"zero horizon", 100, MethodStraightLine, DistributionParams{Duration: 3}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Distribute(tc.amount, tc.method, tc.params, tc.horizon)
			if len(out) != 0 {
				t.Fatalf("expected empty mapping, got %v", out)
			}
		})
	}
}
