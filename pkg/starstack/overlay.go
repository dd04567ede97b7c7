package starstack

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	overlayTargetWidth = 800
	overlaySummaryH    = 60
	// overlayArrowGain magnifies frame offsets so sub-pixel drift is visible.
	overlayArrowGain = 10.0
)

var (
	starColor     = color.RGBA{80, 220, 80, 255}
	gridColor     = color.RGBA{255, 255, 255, 180}
	arrowColor    = color.RGBA{255, 170, 0, 255}
	rejectedColor = color.RGBA{230, 60, 60, 255}
	textColor     = color.RGBA{255, 255, 255, 255}
)

// WriteOverlay renders the alignment overlay of a stacking result as a JPEG
// file.
func WriteOverlay(res *Result, outputPath string) error {
	img, err := RenderOverlay(res)
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create overlay file: %w", err)
	}
	defer f.Close()

	return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
}

// RenderOverlayBytes renders the alignment overlay and returns JPEG bytes.
func RenderOverlayBytes(res *Result) ([]byte, error) {
	img, err := RenderOverlay(res)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderOverlay draws the composite scaled to a fixed width with the
// reference stars circled, the coverage grid with per-zone star counts, one
// arrow per aligned frame showing its magnified offset from the reference,
// and a summary line.
func RenderOverlay(res *Result) (*image.RGBA, error) {
	if res == nil || res.Composite == nil {
		return nil, fmt.Errorf("no composite to render")
	}

	src := res.Composite
	width, height := src.Bounds().Dx(), src.Bounds().Dy()
	scale := float64(overlayTargetWidth) / float64(width)
	imgW := overlayTargetWidth
	imgH := max(int(float64(height)*scale), 100)
	totalH := imgH + overlaySummaryH

	img := image.NewRGBA(image.Rect(0, 0, imgW, totalH))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0, 0, 0, 255}), image.Point{}, draw.Src)

	// Nearest-neighbour upscale of the composite
	sy := float64(height) / float64(imgH)
	for y := 0; y < imgH; y++ {
		srcY := min(int(float64(y)*sy), height-1)
		for x := 0; x < imgW; x++ {
			srcX := min(int(float64(x)/scale), width-1)
			v := src.GrayAt(src.Bounds().Min.X+srcX, src.Bounds().Min.Y+srcY).Y
			img.SetRGBA(x, y, color.RGBA{v, v, v, 255})
		}
	}

	xLo := int(float64(imgW) * fieldEdgeFraction)
	xHi := int(float64(imgW) * (1.0 - fieldEdgeFraction))
	yLo := int(float64(imgH) * fieldEdgeFraction)
	yHi := int(float64(imgH) * (1.0 - fieldEdgeFraction))
	for x := 0; x < imgW; x++ {
		img.Set(x, yLo, gridColor)
		img.Set(x, yHi, gridColor)
	}
	for y := 0; y < imgH; y++ {
		img.Set(xLo, y, gridColor)
		img.Set(xHi, y, gridColor)
	}

	face := basicfont.Face7x13
	if res.ReferenceCatalog != nil {
		for _, s := range res.ReferenceCatalog.Stars {
			cx := int(s.Position.X * scale)
			cy := int(s.Position.Y * float64(imgH) / float64(height))
			radius := 4 + int(s.Brightness/255*8)
			drawCircle(img, cx, cy, radius, starColor)
		}

		coverage := AnalyzeCoverage(res.ReferenceCatalog, width, height)
		xBounds := [3][2]int{{0, xLo}, {xLo, xHi}, {xHi, imgW}}
		yBounds := [3][2]int{{0, yLo}, {yLo, yHi}, {yHi, imgH}}
		for i, pos := range allZones {
			row, col := i/3, i%3
			cx := (xBounds[col][0] + xBounds[col][1]) / 2
			cy := (yBounds[row][0] + yBounds[row][1]) / 2
			z := coverage.Zones[pos]
			drawCenteredText(img, face, fmt.Sprintf("%s %d", z.Label, z.StarCount), cx, cy, textColor)
		}
	}

	cx, cy := imgW/2, imgH/2
	for _, f := range res.Frames {
		if f.Status != FrameAligned {
			continue
		}
		// The transform maps target onto reference, so the frame's own
		// offset is the negated translation.
		dx := -f.Transform.Translation.X * scale * overlayArrowGain
		dy := -f.Transform.Translation.Y * scale * overlayArrowGain
		ex, ey := cx+int(math.Round(dx)), cy+int(math.Round(dy))
		drawLine(img, cx, cy, ex, ey, arrowColor)
		drawArrowHead(img, cx, cy, ex, ey, arrowColor)
	}

	summary := fmt.Sprintf("Reference: frame %d  Aligned: %d  Rejected: %d  Stars: %d",
		res.Reference, res.Aligned, res.Rejected, res.ReferenceCatalog.Len())
	drawText(img, face, summary, 10, imgH+22, textColor)
	if res.Rejected > 0 {
		rejected := "Rejected frames:"
		for _, f := range res.Frames {
			if f.Status == FrameRejected {
				rejected += fmt.Sprintf(" %d", f.Index)
			}
		}
		drawText(img, face, rejected, 10, imgH+44, rejectedColor)
	}

	return img, nil
}

// drawText draws a string at (x, y) using the given font face.
func drawText(img *image.RGBA, face font.Face, s string, x, y int, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// drawCenteredText draws a string centered at (cx, cy).
func drawCenteredText(img *image.RGBA, face font.Face, s string, cx, cy int, c color.RGBA) {
	advance := font.MeasureString(face, s)
	x := cx - advance.Round()/2
	drawText(img, face, s, x, cy, c)
}

// drawCircle draws a circle outline using the midpoint algorithm.
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	x := radius
	y := 0
	err := 0

	for x >= y {
		img.Set(cx+x, cy+y, c)
		img.Set(cx+y, cy+x, c)
		img.Set(cx-y, cy+x, c)
		img.Set(cx-x, cy+y, c)
		img.Set(cx-x, cy-y, c)
		img.Set(cx-y, cy-x, c)
		img.Set(cx+y, cy-x, c)
		img.Set(cx+x, cy-y, c)

		y++
		err += 1 + 2*y
		if 2*(err-x)+1 > 0 {
			x--
			err += 1 - 2*x
		}
	}
}

// drawLine draws a 2px line between two points using Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := intAbs(x1 - x0)
	dy := -intAbs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		img.Set(x0, y0, c)
		img.Set(x0+1, y0, c)
		img.Set(x0, y0+1, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// drawArrowHead draws a simple arrowhead at the end of a line.
func drawArrowHead(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := float64(x1 - x0)
	dy := float64(y1 - y0)
	length := math.Hypot(dx, dy)
	if length < 1 {
		return
	}
	dx /= length
	dy /= length

	const sz = 12.0
	px := float64(x1) - dx*sz
	py := float64(y1) - dy*sz

	drawLine(img, x1, y1, int(px+dy*sz*0.4), int(py-dx*sz*0.4), c)
	drawLine(img, x1, y1, int(px-dy*sz*0.4), int(py+dx*sz*0.4), c)
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
