package starstack

const (
	qualityStarCountWeight  = 0.4
	qualityBrightnessWeight = 0.3
	qualitySharpnessWeight  = 0.3
)

// QualityScore rates a frame from its catalog: star count, mean star
// brightness and mean Sobel gradient magnitude, combined linearly. Scores
// are only comparable between frames of identical dimensions. A frame with
// no stars scores 0.
func QualityScore(img Mat, catalog *Catalog) float64 {
	if catalog.Len() == 0 {
		return 0
	}

	var brightness float64
	for _, s := range catalog.Stars {
		brightness += s.Brightness
	}
	count := float64(len(catalog.Stars))
	brightness /= count

	return count*qualityStarCountWeight +
		brightness*qualityBrightnessWeight +
		meanAbsGradient(img)*qualitySharpnessWeight
}
