package ocr

import (
	"image/color"
	"math"
)

func grayValue(v float64) color.Gray {
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return color.Gray{Y: uint8(math.Round(v))}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
