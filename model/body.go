package model

import "strings"

// CelestialBody holds the constants of the body the vehicle launches from.
// Values are fixed for a mission.
type CelestialBody struct {
	Name string

	// Mu is the gravitational parameter in m^3/s^2.
	Mu float64
	// Radius is the mean radius in metres.
	Radius float64
	// RotationPeriod is the sidereal rotation period in seconds.
	RotationPeriod float64
}

// Known bodies. Kerbin is the default launch body.
var (
	Kerbin = CelestialBody{Name: "Kerbin", Mu: 3.5316e12, Radius: 600000, RotationPeriod: 21600}
	Mun    = CelestialBody{Name: "Mun", Mu: 6.5138398e10, Radius: 200000, RotationPeriod: 138984.38}
	Duna   = CelestialBody{Name: "Duna", Mu: 3.0136321e11, Radius: 320000, RotationPeriod: 65517.859}
	Earth  = CelestialBody{Name: "Earth", Mu: 3.986004418e14, Radius: 6371000, RotationPeriod: 86164.0905}
)

// BodyByName looks up a preset body, ignoring case.
func BodyByName(name string) (CelestialBody, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "kerbin":
		return Kerbin, true
	case "mun":
		return Mun, true
	case "duna":
		return Duna, true
	case "earth":
		return Earth, true
	default:
		return CelestialBody{}, false
	}
}
