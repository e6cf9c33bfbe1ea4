// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package models

import "math"

// CartPole is the classic cart-and-pole: state x = [pos, vel, theta, omega],
// control u = [force]. Grounded on the dynsim physics package's CartPole
// fixture. Unlike Pendulum, CartPole supplies no analytic Jacobian, so
// problems built on it exercise the numdiff fallback path in package
// dynamics.
type CartPole struct {
	CartMass, PoleMass, PoleLength, Gravity float64
}

// NewCartPole returns the dynsim fixture's default parameters.
func NewCartPole() *CartPole {
	return &CartPole{CartMass: 1.0, PoleMass: 0.1, PoleLength: 1.0, Gravity: 9.81}
}

func (c *CartPole) StateDim() int   { return 4 }
func (c *CartPole) ControlDim() int { return 1 }

func (c *CartPole) Dynamics(x, u, xdot []float64) {
	vel, theta, omega := x[1], x[2], x[3]
	force := 0.0
	if len(u) > 0 {
		force = u[0]
	}
	mc, mp, l, g := c.CartMass, c.PoleMass, c.PoleLength, c.Gravity

	sint, cost := math.Sin(theta), math.Cos(theta)
	temp := (force + mp*l*omega*omega*sint) / (mc + mp)
	thetaAcc := (g*sint - cost*temp) / (l * (4.0/3.0 - mp*cost*cost/(mc+mp)))
	xAcc := temp - mp*l*thetaAcc*cost/(mc+mp)

	xdot[0] = vel
	xdot[1] = xAcc
	xdot[2] = omega
	xdot[3] = thetaAcc
}
