package contracts

import (
	"testing"
	"time"
)

func TestEvaluation_TotalWeight(t *testing.T) {
	eval := &Evaluation{
		Date: time.Now(),
		Targets: []TargetWeight{
			{Symbol: "VTI", Weight: 0.60},
			{Symbol: "BND", Weight: 0.40},
		},
	}

	expected := 0.60 + 0.40
	if total := eval.TotalWeight(); total != expected {
		t.Errorf("TotalWeight() = %v, want %v", total, expected)
	}
}

func TestEvaluation_Get(t *testing.T) {
	eval := &Evaluation{
		Targets: []TargetWeight{
			{Symbol: "SPY", Weight: 0.5},
			{Symbol: "QQQ", Weight: 0.5},
		},
	}

	tw, ok := eval.Get("QQQ")
	if !ok {
		t.Fatal("expected to find target for QQQ")
	}
	if tw.Weight != 0.5 {
		t.Errorf("got weight %v, want 0.5", tw.Weight)
	}

	if _, ok := eval.Get("IWM"); ok {
		t.Error("expected no target for IWM")
	}
}

func TestEvaluation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		targets []TargetWeight
		wantErr bool
	}{
		{
			name:    "valid full allocation",
			targets: []TargetWeight{{Symbol: "VTI", Weight: 0.6}, {Symbol: "BND", Weight: 0.4}},
			wantErr: false,
		},
		{
			name:    "cash residual allowed",
			targets: []TargetWeight{{Symbol: "VTI", Weight: 0.5}},
			wantErr: false,
		},
		{
			name:    "negative weight",
			targets: []TargetWeight{{Symbol: "VTI", Weight: -0.1}},
			wantErr: true,
		},
		{
			name:    "duplicate symbol",
			targets: []TargetWeight{{Symbol: "VTI", Weight: 0.3}, {Symbol: "VTI", Weight: 0.3}},
			wantErr: true,
		},
		{
			name:    "over-allocated",
			targets: []TargetWeight{{Symbol: "VTI", Weight: 0.7}, {Symbol: "BND", Weight: 0.7}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := &Evaluation{Date: time.Now(), Targets: tt.targets}
			err := eval.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	ts := time.Date(2024, 3, 15, 23, 59, 0, 0, loc)

	day := Day(ts)
	want := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC)
	if !day.Equal(want) {
		t.Errorf("Day() = %v, want %v", day, want)
	}
	if Day(day) != day {
		t.Error("Day should be idempotent")
	}
}
