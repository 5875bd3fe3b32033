package diagnosis

import (
	"math/rand/v2"
	"strings"
)

// Confidence values reported for each canned diagnosis.
const (
	confidenceFungal  = 0.78
	confidencePest    = 0.85
	confidenceStress  = 0.65
	confidenceHealthy = 0.95
	stressThreshold   = 0.7
)

// RandomSource supplies values in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// SystemRandom draws from the goroutine-safe top-level math/rand/v2 generator.
type SystemRandom struct{}

func (SystemRandom) Float64() float64 { return rand.Float64() }

type Diagnosis struct {
	Text       string
	Confidence float64
}

// Diagnose derives a mock diagnosis from the image URL. URLs mentioning
// neither "disease" nor "pest" fall through to a random stress branch.
func Diagnose(imageURL string, rnd RandomSource) Diagnosis {
	switch {
	case strings.Contains(imageURL, "disease"):
		return Diagnosis{
			Text:       "Early stage fungal infection detected. Recommend immediate treatment.",
			Confidence: confidenceFungal,
		}
	case strings.Contains(imageURL, "pest"):
		return Diagnosis{
			Text:       "Signs of pest infestation. Consider organic pest control.",
			Confidence: confidencePest,
		}
	case rnd != nil && rnd.Float64() > stressThreshold:
		return Diagnosis{
			Text:       "Mild nutrient deficiency observed. Recommend soil test.",
			Confidence: confidenceStress,
		}
	default:
		return Diagnosis{
			Text:       "Healthy plant with good growth.",
			Confidence: confidenceHealthy,
		}
	}
}
