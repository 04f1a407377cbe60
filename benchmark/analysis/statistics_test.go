package analysis

import (
	"math"
	"testing"
	"time"
)

func TestDescribe(t *testing.T) {
	var sample []time.Duration
	for i := 1; i <= 100; i++ {
		sample = append(sample, time.Duration(i)*time.Microsecond)
	}

	s := Describe(sample)
	if s.N != 100 {
		t.Errorf("N = %d, want 100", s.N)
	}
	if s.Min != 1 || s.Max != 100 {
		t.Errorf("Min/Max = %v/%v, want 1/100", s.Min, s.Max)
	}
	if math.Abs(s.Mean-50.5) > 1e-9 {
		t.Errorf("Mean = %v, want 50.5", s.Mean)
	}
	if s.P50 != 50 || s.P90 != 90 || s.P99 != 99 {
		t.Errorf("P50/P90/P99 = %v/%v/%v, want 50/90/99", s.P50, s.P90, s.P99)
	}
}

func TestDescribe_Empty(t *testing.T) {
	if s := Describe(nil); s.N != 0 || s.Mean != 0 {
		t.Errorf("Describe(nil) = %+v, want zero", s)
	}
}

func TestDescribe_Unsorted(t *testing.T) {
	s := Describe([]time.Duration{3 * time.Microsecond, time.Microsecond, 2 * time.Microsecond})
	if s.Min != 1 || s.Max != 3 || s.P50 != 2 {
		t.Errorf("Describe() = %+v, want min 1, p50 2, max 3", s)
	}
}

func TestMannWhitneyU(t *testing.T) {
	tests := []struct {
		name       string
		sample1    []float64
		sample2    []float64
		wantSignif bool
	}{
		{
			name:       "identical samples",
			sample1:    []float64{1, 2, 3, 4, 5},
			sample2:    []float64{1, 2, 3, 4, 5},
			wantSignif: false,
		},
		{
			name:       "clearly different samples",
			sample1:    []float64{1, 2, 3, 4, 5},
			sample2:    []float64{10, 11, 12, 13, 14},
			wantSignif: true,
		},
		{
			name:       "highly overlapping samples",
			sample1:    []float64{3, 4, 5, 6, 7},
			sample2:    []float64{4, 5, 6, 7, 8},
			wantSignif: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MannWhitneyU(tt.sample1, tt.sample2)
			if result.Significant != tt.wantSignif {
				t.Errorf("Significant = %v, want %v (p=%f)", result.Significant, tt.wantSignif, result.PValue)
			}
		})
	}
}

func TestMannWhitneyU_Empty(t *testing.T) {
	if result := MannWhitneyU(nil, []float64{1, 2, 3}); result.U != 0 {
		t.Errorf("U = %f, want 0 for empty sample", result.U)
	}
}

func TestCohensD(t *testing.T) {
	tests := []struct {
		name       string
		sample1    []float64
		sample2    []float64
		wantInterp string
	}{
		{
			name:       "large effect",
			sample1:    []float64{1, 2, 3, 4, 5},
			sample2:    []float64{10, 11, 12, 13, 14},
			wantInterp: "large",
		},
		{
			name:       "negligible effect",
			sample1:    []float64{1, 2, 3, 4, 5},
			sample2:    []float64{1, 2, 3, 4, 5},
			wantInterp: "negligible",
		},
		{
			name:       "too small",
			sample1:    []float64{1},
			sample2:    []float64{2, 3},
			wantInterp: "undefined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, got := CohensD(tt.sample1, tt.sample2); got != tt.wantInterp {
				t.Errorf("CohensD() interpretation = %q, want %q", got, tt.wantInterp)
			}
		})
	}
}

func TestCompareAll(t *testing.T) {
	fast := make([]time.Duration, 30)
	slow := make([]time.Duration, 30)
	for i := range fast {
		fast[i] = time.Duration(10+i%3) * time.Microsecond
		slow[i] = time.Duration(200+i%7) * time.Microsecond
	}

	comps := CompareAll(map[string][]time.Duration{"exact": fast, "substring": slow, "token": fast}, "exact")
	if len(comps) != 2 {
		t.Fatalf("CompareAll() returned %d comparisons, want 2", len(comps))
	}
	if comps[0].Name2 != "substring" || comps[1].Name2 != "token" {
		t.Errorf("comparison order = %s, %s, want substring, token", comps[0].Name2, comps[1].Name2)
	}
	if comps[0].Faster != "exact" || !comps[0].FasterConfident {
		t.Errorf("exact vs substring: Faster = %q (confident %v), want exact", comps[0].Faster, comps[0].FasterConfident)
	}
	if comps[1].Faster != "tie" {
		t.Errorf("exact vs token: Faster = %q, want tie", comps[1].Faster)
	}

	if CompareAll(map[string][]time.Duration{"token": fast}, "exact") != nil {
		t.Error("CompareAll() with missing baseline = non-nil, want nil")
	}
}
