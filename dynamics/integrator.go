// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamics

// Workspace holds the scratch vectors an integrator needs for its internal
// stage evaluations, sized once for (n,m) and reused across every knot and
// every call to Discrete/DiscreteJacobian — the hot path performs no
// allocation.
type Workspace struct {
	n int
	k1, k2, k3, k4 []float64
	xa, xb, xc     []float64
}

// NewWorkspace allocates the scratch buffers for a state dimension n.
func NewWorkspace(n int) *Workspace {
	return &Workspace{
		n:  n,
		k1: make([]float64, n), k2: make([]float64, n),
		k3: make([]float64, n), k4: make([]float64, n),
		xa: make([]float64, n), xb: make([]float64, n), xc: make([]float64, n),
	}
}

func axpy(dst, x, y []float64, a float64) {
	for i := range dst {
		dst[i] = x[i] + a*y[i]
	}
}

// Discrete evaluates x' = f_d(x,u,dt) under the given rule and writes it
// into out (length StateDim()). out must not alias x.
func Discrete(rule Rule, m Model, x, u []float64, dt float64, ws *Workspace, out []float64) {
	switch rule {
	case RawStep:
		m.Dynamics(x, u, out)
	case Midpoint:
		m.Dynamics(x, u, ws.k1)
		axpy(ws.xa, x, ws.k1, dt/2)
		m.Dynamics(ws.xa, u, ws.k2)
		axpy(out, x, ws.k2, dt)
	case RK3:
		m.Dynamics(x, u, ws.k1)
		for i := range ws.k1 {
			ws.k1[i] *= dt
		}
		axpy(ws.xa, x, ws.k1, 0.5)
		m.Dynamics(ws.xa, u, ws.k2)
		for i := range ws.k2 {
			ws.k2[i] *= dt
		}
		for i := range ws.xb {
			ws.xb[i] = x[i] - ws.k1[i] + 2*ws.k2[i]
		}
		m.Dynamics(ws.xb, u, ws.k3)
		for i := range ws.k3 {
			ws.k3[i] *= dt
		}
		for i := range out {
			out[i] = x[i] + (ws.k1[i]+4*ws.k2[i]+ws.k3[i])/6
		}
	case RK4:
		m.Dynamics(x, u, ws.k1)
		axpy(ws.xa, x, ws.k1, dt/2)
		m.Dynamics(ws.xa, u, ws.k2)
		axpy(ws.xb, x, ws.k2, dt/2)
		m.Dynamics(ws.xb, u, ws.k3)
		axpy(ws.xc, x, ws.k3, dt)
		m.Dynamics(ws.xc, u, ws.k4)
		for i := range out {
			out[i] = x[i] + dt/6*(ws.k1[i]+2*ws.k2[i]+2*ws.k3[i]+ws.k4[i])
		}
	default:
		panic("dynamics: unknown integrator rule")
	}
}
