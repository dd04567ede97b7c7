package starstack

const fieldEdgeFraction = 0.25

var zoneLabels = map[ZonePosition]string{
	ZoneTopLeft:     "TL",
	ZoneTop:         "T",
	ZoneTopRight:    "TR",
	ZoneLeft:        "L",
	ZoneCenter:      "Center",
	ZoneRight:       "R",
	ZoneBottomLeft:  "BL",
	ZoneBottom:      "B",
	ZoneBottomRight: "BR",
}

var allZones = []ZonePosition{
	ZoneTopLeft, ZoneTop, ZoneTopRight,
	ZoneLeft, ZoneCenter, ZoneRight,
	ZoneBottomLeft, ZoneBottom, ZoneBottomRight,
}

// String returns the short zone label used in reports and overlays.
func (z ZonePosition) String() string { return zoneLabels[z] }

// AnalyzeCoverage divides the field into a 3x3 grid (edge zones take a
// quarter of each dimension) and counts the catalog's stars per zone. The
// field is balanced when the center and all four corners hold stars.
func AnalyzeCoverage(catalog *Catalog, width, height int) *FieldCoverage {
	xLo := float64(width) * fieldEdgeFraction
	xHi := float64(width) * (1.0 - fieldEdgeFraction)
	yLo := float64(height) * fieldEdgeFraction
	yHi := float64(height) * (1.0 - fieldEdgeFraction)

	zoneStars := make(map[ZonePosition][]Star, len(allZones))
	if catalog != nil {
		for _, s := range catalog.Stars {
			pos := classifyZone(s.Position.X, s.Position.Y, xLo, xHi, yLo, yHi)
			zoneStars[pos] = append(zoneStars[pos], s)
		}
	}

	result := &FieldCoverage{Zones: make(map[ZonePosition]ZoneData, len(allZones))}
	for _, pos := range allZones {
		zd := computeZoneData(pos, zoneStars[pos])
		result.Zones[pos] = zd
		if zd.StarCount > 0 {
			result.OccupiedZones++
		}
	}

	result.Balanced = result.Zones[ZoneCenter].StarCount > 0
	for _, pos := range []ZonePosition{ZoneTopLeft, ZoneTopRight, ZoneBottomLeft, ZoneBottomRight} {
		if result.Zones[pos].StarCount == 0 {
			result.Balanced = false
		}
	}
	return result
}

func classifyZone(x, y, xLo, xHi, yLo, yHi float64) ZonePosition {
	var col, row int
	if x < xLo {
		col = 0
	} else if x < xHi {
		col = 1
	} else {
		col = 2
	}
	if y < yLo {
		row = 0
	} else if y < yHi {
		row = 1
	} else {
		row = 2
	}

	grid := [3][3]ZonePosition{
		{ZoneTopLeft, ZoneTop, ZoneTopRight},
		{ZoneLeft, ZoneCenter, ZoneRight},
		{ZoneBottomLeft, ZoneBottom, ZoneBottomRight},
	}
	return grid[row][col]
}

func computeZoneData(pos ZonePosition, stars []Star) ZoneData {
	zd := ZoneData{
		Label:     zoneLabels[pos],
		StarCount: len(stars),
	}
	if len(stars) == 0 {
		return zd
	}
	var sum float64
	for _, s := range stars {
		sum += s.Brightness
	}
	zd.MeanBrightness = sum / float64(len(stars))
	return zd
}
