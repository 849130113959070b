package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	HoursPerDay      int `yaml:"hours_per_day"`
	AutosaveSeconds  int `yaml:"autosave_seconds"`
	LogCap           int `yaml:"log_cap"`
	ShipmentHours    int `yaml:"shipment_hours"`
	SeasonLengthDays int `yaml:"season_length_days"`

	SeasonMultipliers []float64 `yaml:"season_multipliers"`
	OverheadByStage   []int     `yaml:"overhead_by_stage"`

	InterestRate   float64 `yaml:"interest_rate"`
	DebtDanger     int     `yaml:"debt_danger"`
	DebtRuin       int     `yaml:"debt_ruin"`
	LoanAmount     int     `yaml:"loan_amount"`
	RepayChunk     int     `yaml:"repay_chunk"`
	MaxOverdueDays int     `yaml:"max_overdue_days"`

	RepMin         int `yaml:"rep_min"`
	RepMax         int `yaml:"rep_max"`
	RepDecayPerDay int `yaml:"rep_decay_per_day"`

	DemandMin float64 `yaml:"demand_min"`
	DemandMax float64 `yaml:"demand_max"`
	ShockMin  float64 `yaml:"shock_min"`
	ShockMax  float64 `yaml:"shock_max"`

	StallCost      int `yaml:"stall_cost"`
	StorefrontCost int `yaml:"storefront_cost"`
	HelperCost     int `yaml:"helper_cost"`
	NewspaperCost  int `yaml:"newspaper_cost"`
	AdvertiseBase  int `yaml:"advertise_base"`
	MigrateCost    int `yaml:"migrate_cost"`

	CompetitorArrivesDay int `yaml:"competitor_arrives_day"`

	Unlocks Unlocks `yaml:"unlocks"`
}

// Unlocks holds the thresholds that reveal town features. Each flag is
// one-way: once a threshold has been crossed the feature stays unlocked.
type Unlocks struct {
	StallMoney      int `yaml:"stall_money"`
	StallServed     int `yaml:"stall_served"`
	StorefrontMoney int `yaml:"storefront_money"`
	StorefrontRep   int `yaml:"storefront_rep"`
	NewspaperRep    int `yaml:"newspaper_rep"`
	NewspaperGood   int `yaml:"newspaper_good"`
	BankMoney       int `yaml:"bank_money"`
	BankStage       int `yaml:"bank_stage"`
	MigrateRep      int `yaml:"migrate_rep"`
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t.normalized(), nil
}

// Defaults is the balance the game ships with. A missing tuning.yaml is
// not an error for resumed saves; the server falls back to these.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",

		HoursPerDay:      24,
		AutosaveSeconds:  15,
		LogCap:           20,
		ShipmentHours:    6,
		SeasonLengthDays: 30,

		SeasonMultipliers: []float64{1.0, 1.1, 1.05, 0.85},
		OverheadByStage:   []int{2, 5, 11},

		InterestRate:   0.02,
		DebtDanger:     350,
		DebtRuin:       600,
		LoanAmount:     120,
		RepayChunk:     80,
		MaxOverdueDays: 3,

		RepMin:         -100,
		RepMax:         100,
		RepDecayPerDay: 1,

		DemandMin: 0.70,
		DemandMax: 1.25,
		ShockMin:  0.85,
		ShockMax:  1.15,

		StallCost:      120,
		StorefrontCost: 480,
		HelperCost:     260,
		NewspaperCost:  200,
		AdvertiseBase:  30,
		MigrateCost:    150,

		CompetitorArrivesDay: 12,

		Unlocks: Unlocks{
			StallMoney:      120,
			StallServed:     10,
			StorefrontMoney: 450,
			StorefrontRep:   75,
			NewspaperRep:    70,
			NewspaperGood:   8,
			BankMoney:       220,
			BankStage:       1,
			MigrateRep:      -40,
		},
	}
}

func (t Tuning) normalized() Tuning {
	d := Defaults()
	if t.HoursPerDay <= 0 {
		t.HoursPerDay = d.HoursPerDay
	}
	if t.LogCap <= 0 {
		t.LogCap = d.LogCap
	}
	if len(t.SeasonMultipliers) == 0 {
		t.SeasonMultipliers = d.SeasonMultipliers
	}
	if len(t.OverheadByStage) == 0 {
		t.OverheadByStage = d.OverheadByStage
	}
	if t.DemandMax <= t.DemandMin {
		t.DemandMin, t.DemandMax = d.DemandMin, d.DemandMax
	}
	if t.RepMax <= t.RepMin {
		t.RepMin, t.RepMax = d.RepMin, d.RepMax
	}
	if t.SeasonLengthDays <= 0 {
		t.SeasonLengthDays = d.SeasonLengthDays
	}
	return t
}

// Overhead returns the daily fixed cost for a business stage.
func (t Tuning) Overhead(stage int) int {
	if stage < 0 {
		stage = 0
	}
	if stage >= len(t.OverheadByStage) {
		stage = len(t.OverheadByStage) - 1
	}
	return t.OverheadByStage[stage]
}

// SeasonMultiplier returns the demand multiplier for a season index.
func (t Tuning) SeasonMultiplier(season int) float64 {
	if len(t.SeasonMultipliers) == 0 {
		return 1.0
	}
	return t.SeasonMultipliers[season%len(t.SeasonMultipliers)]
}
