package psg

import "math"

// PanGains maps a pan position in [-1,1] to equal-power channel gains.
func PanGains(pos float64) (l, r float64) {
	angle := (clamp(pos, -1, 1) + 1) * math.Pi / 4
	return math.Cos(angle), math.Sin(angle)
}

// PanFromGains inverts PanGains.
func PanFromGains(l, r float64) float64 {
	if l == 0 && r == 0 {
		return 0
	}
	return math.Atan2(r, l)*4/math.Pi - 1
}
