package model

// TelemetrySample is a read-only view of the vehicle taken once per decision
// tick. Altitudes are metres above the body's mean radius.
type TelemetrySample struct {
	Time              float64 // universal time, seconds
	Altitude          float64
	ApoapsisAltitude  float64
	PeriapsisAltitude float64

	CurrentStage int
	// FuelInStage is liquid fuel plus oxidizer, in resource units, scoped to
	// the stage currently burning.
	FuelInStage float64

	Mass            float64 // kg
	AvailableThrust float64 // N
	SpecificImpulse float64 // s
}

// OrbitSnapshot carries the orbital elements the planner and the burn
// executor need. ApoapsisRadius is measured from the body's centre.
type OrbitSnapshot struct {
	Time              float64
	ApoapsisRadius    float64
	ApoapsisAltitude  float64
	PeriapsisAltitude float64
	SemiMajorAxis     float64
	Mu                float64
	TimeToApoapsis    float64
}

// AltitudeSum is periapsis plus apoapsis altitude, the quantity compared
// against the circularization target.
func (o OrbitSnapshot) AltitudeSum() float64 {
	return o.PeriapsisAltitude + o.ApoapsisAltitude
}
