package divoom

import "math"

// Home-automation hosts express brightness on a 0–255 scale; the device
// uses 0–100.

// ScaleFrom255 converts a 0–255 brightness to the device's 0–100 range.
// Inputs outside 0–255 are clamped first.
func ScaleFrom255(v int) int {
	v = clamp(v, 0, 255)
	return int(math.Round(float64(v) * 100 / 255))
}

// ScaleTo255 converts a device brightness (0–100) to the 0–255 scale.
func ScaleTo255(v int) int {
	v = clamp(v, 0, 100)
	return int(math.Round(float64(v) * 255 / 100))
}
