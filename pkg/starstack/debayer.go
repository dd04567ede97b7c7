package starstack

var (
	crossOffsets    = [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	diagonalOffsets = [][2]int{{-1, -1}, {1, -1}, {-1, 1}, {1, 1}}
	rowOffsets      = [][2]int{{-1, 0}, {1, 0}}
	columnOffsets   = [][2]int{{0, -1}, {0, 1}}
)

// DebayerRGGB interpolates a raw RGGB mosaic bilinearly and returns the
// luminance (R+G+B)/3 of every pixel. Even rows hold R,G; odd rows G,B.
// Neighbours past the edge are clamped.
func DebayerRGGB(data []float64, width, height int) []float64 {
	out := make([]float64, width*height)

	avg := func(x, y int, offsets [][2]int) float64 {
		var sum float64
		for _, o := range offsets {
			xx := clampInt(x+o[0], 0, width-1)
			yy := clampInt(y+o[1], 0, height-1)
			sum += data[yy*width+xx]
		}
		return sum / float64(len(offsets))
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			self := data[y*width+x]
			var r, g, b float64
			switch {
			case y%2 == 0 && x%2 == 0: // R
				r, g, b = self, avg(x, y, crossOffsets), avg(x, y, diagonalOffsets)
			case y%2 == 0: // G on a red row
				r, g, b = avg(x, y, rowOffsets), self, avg(x, y, columnOffsets)
			case x%2 == 0: // G on a blue row
				r, g, b = avg(x, y, columnOffsets), self, avg(x, y, rowOffsets)
			default: // B
				r, g, b = avg(x, y, diagonalOffsets), avg(x, y, crossOffsets), self
			}
			out[y*width+x] = (r + g + b) / 3
		}
	}
	return out
}
