package pricing

import (
	"nifty-strangler/internal/models"
)

// Gamma score normalisation.
const (
	gammaExposureCap = 50000.0
	gammaNeutral     = 50.0
)

// GammaRiskScore maps aggregate signed gamma exposure onto [0, 100].
// Each leg contributes sign(side)*gamma*qty*spot; the total is clamped to
// ±50000 and mapped linearly, so 50 is neutral, below 50 net short gamma
// and above 50 net long gamma. An empty set scores 50.
func GammaRiskScore(legs []models.Leg, spot float64) float64 {
	if len(legs) == 0 {
		return gammaNeutral
	}

	var exposure float64
	for _, l := range legs {
		exposure += l.Side.Sign() * l.Greeks.Gamma * float64(l.Quantity) * spot
	}

	clamped := clamp(exposure, -gammaExposureCap, gammaExposureCap)
	return gammaNeutral + clamped/gammaExposureCap*gammaNeutral
}
