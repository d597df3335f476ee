package sim

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// engine returns the stage whose engine fires at the current stage index.
func (v *Vehicle) engine() *Stage {
	for i := range v.stages {
		if v.stages[i].Index == v.stage {
			return &v.stages[i]
		}
	}
	return nil
}

// mass is payload plus every stage still attached (Index <= current stage).
func (v *Vehicle) mass() float64 {
	m := v.cfg.PayloadMass
	for _, s := range v.stages {
		if s.Index <= v.stage {
			m += s.DryMass + s.Propellant*v.cfg.UnitMass
		}
	}
	return m
}

func (v *Vehicle) attitude() attitude {
	if v.autopilot {
		return v.target
	}
	return v.held
}

// thrustDirection resolves pitch above the local horizon and compass heading
// into the orbital plane. The plane contains local up and local east, so only
// the east component of the heading survives.
func thrustDirection(pos r2.Vec, att attitude) r2.Vec {
	up := r2.Unit(pos)
	east := r2.Vec{X: up.Y, Y: -up.X}
	p := att.pitch * math.Pi / 180
	h := math.Sin(att.heading * math.Pi / 180)
	return r2.Add(r2.Scale(math.Cos(p)*h, east), r2.Scale(math.Sin(p), up))
}

type kinematics struct {
	pos, vel r2.Vec
}

func (k kinematics) add(d kinematics, dt float64) kinematics {
	return kinematics{
		pos: r2.Add(k.pos, r2.Scale(dt, d.pos)),
		vel: r2.Add(k.vel, r2.Scale(dt, d.vel)),
	}
}

// step integrates one substep of dt seconds. The caller holds mu.
func (v *Vehicle) step(dt float64) {
	mu := v.cfg.Body.Mu
	radius := v.cfg.Body.Radius
	m := v.mass()

	force := 0.0
	if e := v.engine(); e != nil && e.Propellant > 0 && v.throttle > 0 {
		force = e.Thrust * v.throttle
		mdot := force / (e.SpecificImpulse * v.cfg.StandardGravity)
		e.Propellant = math.Max(0, e.Propellant-mdot*dt/v.cfg.UnitMass)
	}

	// Resting on the pad until thrust beats weight.
	r := r2.Norm(v.pos)
	if r <= radius && force < m*mu/(radius*radius) && v.vel == (r2.Vec{}) {
		return
	}

	att := v.attitude()
	accel := force / m
	deriv := func(k kinematics) kinematics {
		rk := r2.Norm(k.pos)
		g := r2.Scale(-mu/(rk*rk*rk), k.pos)
		return kinematics{
			pos: k.vel,
			vel: r2.Add(g, r2.Scale(accel, thrustDirection(k.pos, att))),
		}
	}

	k0 := kinematics{pos: v.pos, vel: v.vel}
	k1 := deriv(k0)
	k2 := deriv(k0.add(k1, dt/2))
	k3 := deriv(k0.add(k2, dt/2))
	k4 := deriv(k0.add(k3, dt))

	v.pos = r2.Add(v.pos, r2.Scale(dt/6, r2.Add(r2.Add(k1.pos, r2.Scale(2, k2.pos)), r2.Add(r2.Scale(2, k3.pos), k4.pos))))
	v.vel = r2.Add(v.vel, r2.Scale(dt/6, r2.Add(r2.Add(k1.vel, r2.Scale(2, k2.vel)), r2.Add(r2.Scale(2, k3.vel), k4.vel))))

	if r2.Norm(v.pos) < radius {
		v.pos = r2.Scale(radius, r2.Unit(v.pos))
		v.vel = r2.Vec{}
	}
}

type elements struct {
	semiMajorAxis  float64
	eccentricity   float64
	apoapsis       float64 // radius
	periapsis      float64 // radius
	timeToApoapsis float64
}

// elementsOf derives Keplerian elements from a planar state vector. An
// unbound trajectory reports an infinite apoapsis.
func elementsOf(pos, vel r2.Vec, mu float64) elements {
	r := r2.Norm(pos)
	energy := r2.Norm2(vel)/2 - mu/r
	h := r2.Cross(pos, vel)
	ecc := math.Sqrt(math.Max(0, 1+2*energy*h*h/(mu*mu)))

	if energy >= 0 {
		return elements{
			semiMajorAxis: math.Inf(1),
			eccentricity:  ecc,
			apoapsis:      math.Inf(1),
			periapsis:     h * h / (mu * (1 + ecc)),
		}
	}

	a := -mu / (2 * energy)
	el := elements{
		semiMajorAxis: a,
		eccentricity:  ecc,
		apoapsis:      a * (1 + ecc),
		periapsis:     a * (1 - ecc),
	}

	n := math.Sqrt(mu / (a * a * a))
	cosE := 1.0
	if ecc > 1e-9 {
		cosE = math.Max(-1, math.Min(1, (1-r/a)/ecc))
	}
	eccAnomaly := math.Acos(cosE)
	if r2.Dot(pos, vel) < 0 {
		eccAnomaly = 2*math.Pi - eccAnomaly
	}
	meanAnomaly := eccAnomaly - ecc*math.Sin(eccAnomaly)
	tta := (math.Pi - meanAnomaly) / n
	if tta < 0 {
		tta += 2 * math.Pi / n
	}
	el.timeToApoapsis = tta
	return el
}
