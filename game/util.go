package game

import "math"

func dist(x1, y1, x2, y2 float32) float32 {
	dx, dy := x2-x1, y2-y1
	return float32(math.Sqrt(float64(dx*dx + dy*dy)))
}

func clampf(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
