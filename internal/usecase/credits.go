package usecase

import (
	"math"
	"strings"

	"greentoken/internal/domain"
)

// Annual credits per hectare by ecosystem.
var creditRates = map[string]float64{
	domain.EcosystemMangrove:  10,
	domain.EcosystemSeagrass:  8,
	domain.EcosystemSaltMarsh: 6,
	domain.EcosystemKelp:      5,
}

// EstimateCredits is area times the ecosystem's annual sequestration rate,
// rounded to two decimals.
func EstimateCredits(areaHectares float64, ecosystemType string) (float64, error) {
	rate, ok := creditRates[strings.ToUpper(strings.TrimSpace(ecosystemType))]
	if !ok {
		return 0, domain.NewValidationError("ecosystemType", "unknown ecosystem type")
	}
	if areaHectares <= 0 || math.IsNaN(areaHectares) || math.IsInf(areaHectares, 0) {
		return 0, domain.NewValidationError("areaHectares", "must be positive")
	}
	return math.Round(areaHectares*rate*100) / 100, nil
}
