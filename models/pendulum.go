// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package models provides the test-fixture dynamics used by the solver's
// end-to-end scenarios: a simple pendulum with an analytic continuous
// Jacobian (dynamics.JacobianModel) and a cart-pole without one, so
// problems built on the cart-pole use the numdiff fallback.
package models

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Pendulum is the single-link damped pendulum ẋ = [x2; (u - b·x2 - m·g·l·sin(x1))/I],
// state x = [theta, thetadot], control u = [torque]. The default parameters
// match the swing-up fixture's m=1, l=0.5, b=0.1, g=9.81, I=m*l*l.
type Pendulum struct {
	Mass, Length, Damping, Gravity float64
}

// NewPendulum returns the fixture's default parameters.
func NewPendulum() *Pendulum {
	return &Pendulum{Mass: 1, Length: 0.5, Damping: 0.1, Gravity: 9.81}
}

func (p *Pendulum) inertia() float64 { return p.Mass * p.Length * p.Length }

func (p *Pendulum) StateDim() int   { return 2 }
func (p *Pendulum) ControlDim() int { return 1 }

func (p *Pendulum) Dynamics(x, u, xdot []float64) {
	theta, thetadot := x[0], x[1]
	torque := 0.0
	if len(u) > 0 {
		torque = u[0]
	}
	I := p.inertia()
	xdot[0] = thetadot
	xdot[1] = (torque - p.Damping*thetadot - p.Mass*p.Gravity*p.Length*math.Sin(theta)) / I
}

// Jacobian fills the analytic ∂f/∂x (2x2) and ∂f/∂u (2x1) blocks.
func (p *Pendulum) Jacobian(x, u []float64, A, B *mat.Dense) {
	theta := x[0]
	I := p.inertia()
	A.Zero()
	A.Set(0, 1, 1)
	A.Set(1, 0, -p.Mass*p.Gravity*p.Length*math.Cos(theta)/I)
	A.Set(1, 1, -p.Damping/I)
	B.Zero()
	B.Set(1, 0, 1/I)
}
