package vehicles

import "github.com/rchmtmaulana/skripsi-avc/internal/models"

// Classify maps axle count and tire configuration to a toll class.
// Three or more axles decide the class alone (capped at 5). Two axles need the
// tire configuration. Anything else stays unclassified until more is known.
func Classify(axleCount int, tire models.TireConfig) models.Classification {
	switch {
	case axleCount >= 5:
		return models.ClassificationFor(5)
	case axleCount >= 3:
		return models.ClassificationFor(axleCount)
	case axleCount == 2 && tire == models.TireSingle:
		return models.ClassificationFor(1)
	case axleCount == 2 && tire == models.TireDouble:
		return models.ClassificationFor(2)
	default:
		return models.Unclassified
	}
}
