package starstack

import "image"

// Contour is a closed polygon traced along the outer boundary of a
// connected bright region, in pixel coordinates.
type Contour []image.Point

// signedArea returns the shoelace area of the polygon. The sign depends on
// the traversal direction.
func (c Contour) signedArea() float64 {
	if len(c) < 3 {
		return 0
	}
	var sum float64
	for i, p := range c {
		q := c[(i+1)%len(c)]
		sum += float64(p.X*q.Y - q.X*p.Y)
	}
	return sum / 2
}

// centroid returns the first-order moment centroid of the polygon outline,
// matching spatial moments of a contour as computed by OpenCV. ok is false
// for polygons with no enclosed area.
func (c Contour) centroid() (Point2d, bool) {
	if len(c) < 3 {
		return Point2d{}, false
	}
	var m00, m10, m01 float64
	for i, p := range c {
		q := c[(i+1)%len(c)]
		xi, yi := float64(p.X), float64(p.Y)
		xj, yj := float64(q.X), float64(q.Y)
		a := xi*yj - xj*yi
		m00 += a
		m10 += a * (xi + xj)
		m01 += a * (yi + yj)
	}
	m00 /= 2
	m10 /= 6
	m01 /= 6
	if m00 < 0 {
		m00, m10, m01 = -m00, -m10, -m01
	}
	if m00 == 0 {
		return Point2d{}, false
	}
	return Point2d{X: m10 / m00, Y: m01 / m00}, true
}
