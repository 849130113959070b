package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	body := "hours_per_day: 12\ninterest_rate: 0.05\noverhead_by_stage: [1, 2, 3]\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tune, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.HoursPerDay != 12 {
		t.Fatalf("hours_per_day = %d, want 12", tune.HoursPerDay)
	}
	if tune.InterestRate != 0.05 {
		t.Fatalf("interest_rate = %v, want 0.05", tune.InterestRate)
	}
	// Untouched fields keep their defaults.
	if tune.LoanAmount != Defaults().LoanAmount {
		t.Fatalf("loan_amount = %d, want default %d", tune.LoanAmount, Defaults().LoanAmount)
	}
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestOverhead_ClampsStage(t *testing.T) {
	tune := Defaults()
	if got := tune.Overhead(-1); got != tune.OverheadByStage[0] {
		t.Fatalf("Overhead(-1) = %d", got)
	}
	if got := tune.Overhead(99); got != tune.OverheadByStage[len(tune.OverheadByStage)-1] {
		t.Fatalf("Overhead(99) = %d", got)
	}
}

func TestSeasonMultiplier_Wraps(t *testing.T) {
	tune := Defaults()
	if tune.SeasonMultiplier(0) != tune.SeasonMultiplier(4) {
		t.Fatalf("season multiplier should wrap every 4 seasons")
	}
}

func TestNormalized_RejectsDegenerateBands(t *testing.T) {
	bad := Tuning{DemandMin: 2, DemandMax: 1, RepMin: 5, RepMax: 5, HoursPerDay: 24, LogCap: 20, SeasonLengthDays: 30,
		SeasonMultipliers: []float64{1}, OverheadByStage: []int{1}}
	got := bad.normalized()
	d := Defaults()
	if got.DemandMin != d.DemandMin || got.DemandMax != d.DemandMax {
		t.Fatalf("demand band not repaired: %+v", got)
	}
	if got.RepMin != d.RepMin || got.RepMax != d.RepMax {
		t.Fatalf("rep band not repaired: %+v", got)
	}
}
