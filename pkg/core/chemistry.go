// Package core provides chemistry constants and charge-state mass conversions
package core

import "math"

// ProtonMass is the proton rest mass in Da used for charge-state reconstruction.
const ProtonMass = 1.007276466621

// ChargeMass converts a precursor m/z and signed charge into the singly charged
// equivalent mass written to the Z line of MS2 files. A zero charge yields 0.
func ChargeMass(mz float64, z int) float64 {
	switch {
	case z > 0:
		return mz*float64(z) - ProtonMass*float64(z-1)
	case z < 0:
		return mz*float64(-z) + ProtonMass*float64(-z-1)
	default:
		return 0
	}
}

// RoundFloat rounds a float to n decimal places
func RoundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
