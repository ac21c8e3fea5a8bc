package usecase

import (
	"math"
	"testing"

	"greentoken/internal/domain"
)

func TestEstimateCredits(t *testing.T) {
	cases := []struct {
		area float64
		eco  string
		want float64
	}{
		{10, domain.EcosystemMangrove, 100},
		{10, "seagrass", 80},
		{2.5, domain.EcosystemSaltMarsh, 15},
		{0.5, domain.EcosystemKelp, 2.5},
	}
	for _, tc := range cases {
		t.Run(tc.eco, func(t *testing.T) {
			got, err := EstimateCredits(tc.area, tc.eco)
			if err != nil {
				t.Fatalf("estimate: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestEstimateCreditsRejectsBadInput(t *testing.T) {
	for _, tc := range []struct {
		area float64
		eco  string
	}{
		{10, "TUNDRA"},
		{0, domain.EcosystemKelp},
		{math.NaN(), domain.EcosystemKelp},
	} {
		if _, err := EstimateCredits(tc.area, tc.eco); !domain.IsValidation(err) {
			t.Fatalf("expected validation error for %v/%s, got %v", tc.area, tc.eco, err)
		}
	}
}
