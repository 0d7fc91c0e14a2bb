package reveal

import "math"

// Ease maps normalised time x in [0,1] to normalised progress.
type Ease func(x float64) float64

// Linear is the identity ease.
func Linear(x float64) float64 { return x }

// SineInOut is the symmetric sine ease-in-ease-out curve.
func SineInOut(x float64) float64 {
	return -(math.Cos(math.Pi*x) - 1) / 2
}

// SineIn starts slowly and ends at full speed.
func SineIn(x float64) float64 {
	return 1 - math.Cos(x*math.Pi/2)
}

// SineOut starts at full speed and settles.
func SineOut(x float64) float64 {
	return math.Sin(x * math.Pi / 2)
}

// QuadOut decelerates quadratically.
func QuadOut(x float64) float64 {
	return 1 - (1-x)*(1-x)
}

// EaseByName resolves the names accepted in configuration. Unknown names
// fall back to SineInOut.
func EaseByName(name string) Ease {
	switch name {
	case "linear":
		return Linear
	case "sine.in":
		return SineIn
	case "sine.out":
		return SineOut
	case "power1.out":
		return QuadOut
	default:
		return SineInOut
	}
}
