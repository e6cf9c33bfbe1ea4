// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamics

import (
	"gonum.org/v1/gonum/mat"

	"github.com/trajopt/ilqr/numdiff"
)

// JacobianWorkspace holds every scratch matrix/vector the discrete-Jacobian
// chain rule needs, sized once for (n,m) at problem construction and reused
// on every call — see Workspace's allocation-once rationale.
type JacobianWorkspace struct {
	n, m int
	ws   *Workspace

	a1, a2, a3, a4 *mat.Dense // n×n continuous Jacobians at each stage
	b1, b2, b3, b4 *mat.Dense // n×m continuous Jacobians at each stage

	dk1dx, dk2dx, dk3dx, dk4dx *mat.Dense
	dk1du, dk2du, dk3du, dk4du *mat.Dense
	dxdx, dxdu                 *mat.Dense // d(stage x)/dx, d(stage x)/du scratch
	tmpNN                      *mat.Dense
	tmpNM                      *mat.Dense
	eye                        *mat.Dense

	est       *numdiff.Estimator // fallback finite-difference kernel
	combined  []float64          // scratch [x;u] input for est
	combinedJ []float64          // scratch n×(n+m) output for est
}

// NewJacobianWorkspace allocates the scratch matrices for state dimension n
// and control dimension m.
func NewJacobianWorkspace(n, m int) *JacobianWorkspace {
	jw := &JacobianWorkspace{n: n, m: m, ws: NewWorkspace(n)}
	newNN := func() *mat.Dense { return mat.NewDense(n, n, nil) }
	newNM := func() *mat.Dense { return mat.NewDense(n, m, nil) }
	jw.a1, jw.a2, jw.a3, jw.a4 = newNN(), newNN(), newNN(), newNN()
	jw.b1, jw.b2, jw.b3, jw.b4 = newNM(), newNM(), newNM(), newNM()
	jw.dk1dx, jw.dk2dx, jw.dk3dx, jw.dk4dx = newNN(), newNN(), newNN(), newNN()
	jw.dk1du, jw.dk2du, jw.dk3du, jw.dk4du = newNM(), newNM(), newNM(), newNM()
	jw.dxdx, jw.tmpNN = newNN(), newNN()
	jw.dxdu, jw.tmpNM = newNM(), newNM()
	jw.eye = newNN()
	for i := 0; i < n; i++ {
		jw.eye.Set(i, i, 1)
	}
	jw.combined = make([]float64, n+m)
	jw.combinedJ = make([]float64, n*(n+m))
	return jw
}

// estimateJacobian differentiates m.Dynamics with respect to the combined
// [x;u] input, splitting the result into the continuous A,B blocks.
func (jw *JacobianWorkspace) estimateJacobian(model Model, x, u []float64, A, B *mat.Dense) {
	n, m := jw.n, jw.m
	if jw.est == nil {
		jw.est = &numdiff.Estimator{N: n + m, M: n, Method: numdiff.Central}
	}
	jw.est.Fn = func(xu, y []float64) {
		model.Dynamics(xu[:n], xu[n:], y)
	}
	copy(jw.combined[:n], x)
	copy(jw.combined[n:], u)
	jw.est.Jacobian(jw.combined, jw.combinedJ)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			A.Set(i, j, jw.combinedJ[i*(n+m)+j])
		}
		for j := 0; j < m; j++ {
			B.Set(i, j, jw.combinedJ[i*(n+m)+n+j])
		}
	}
}

func (jw *JacobianWorkspace) jac(m Model, jm JacobianModel, x, u []float64, A, B *mat.Dense) {
	if jm != nil {
		jm.Jacobian(x, u, A, B)
		return
	}
	jw.estimateJacobian(m, x, u, A, B)
}

// Continuous computes the continuous-time Jacobian ∂f/∂x, ∂f/∂u of m at
// (x,u) — analytic if m implements JacobianModel, numerically estimated
// otherwise. Exported so composite models (e.g. an infeasible-start
// slack-augmented model) can reuse this dispatch for their own wrapped
// sub-model without duplicating the analytic-or-fallback logic.
func (jw *JacobianWorkspace) Continuous(m Model, x, u []float64, A, B *mat.Dense) {
	jm, _ := HasAnalyticJacobian(m)
	jw.jac(m, jm, x, u, A, B)
}

// DiscreteJacobian computes (A,B) = ∂f_d/∂(x,u) at (x,u,dt) under rule,
// composing the continuous Jacobian (analytic if m implements
// JacobianModel, numerically estimated otherwise) through the integrator's
// own stages by the chain rule.
func DiscreteJacobian(rule Rule, m Model, x, u []float64, dt float64, jw *JacobianWorkspace, A, B *mat.Dense) {
	jm, _ := HasAnalyticJacobian(m)
	ws := jw.ws

	switch rule {
	case RawStep:
		jw.jac(m, jm, x, u, A, B)

	case Midpoint:
		m.Dynamics(x, u, ws.k1)
		jw.jac(m, jm, x, u, jw.a1, jw.b1)
		axpy(ws.xa, x, ws.k1, dt/2)

		// d(xm)/dx = I + dt/2*A1 ; d(xm)/du = dt/2*B1
		jw.dxdx.Scale(dt/2, jw.a1)
		jw.dxdx.Add(jw.dxdx, jw.eye)
		jw.dxdu.Scale(dt/2, jw.b1)

		m.Dynamics(ws.xa, u, ws.k2)
		jw.jac(m, jm, ws.xa, u, jw.a2, jw.b2)

		// A = I + dt*A2*dxdx ; B = dt*(A2*dxdu + B2)
		jw.tmpNN.Mul(jw.a2, jw.dxdx)
		A.Scale(dt, jw.tmpNN)
		A.Add(A, jw.eye)

		jw.tmpNM.Mul(jw.a2, jw.dxdu)
		jw.tmpNM.Add(jw.tmpNM, jw.b2)
		B.Scale(dt, jw.tmpNM)

	case RK3:
		m.Dynamics(x, u, ws.k1)
		jw.jac(m, jm, x, u, jw.a1, jw.b1)
		jw.dk1dx.Scale(dt, jw.a1)
		jw.dk1du.Scale(dt, jw.b1)
		for i := range ws.k1 {
			ws.k1[i] *= dt
		}
		axpy(ws.xa, x, ws.k1, 0.5)

		// dxa/dx = I + dk1dx/2 ; dxa/du = dk1du/2
		jw.dxdx.Scale(0.5, jw.dk1dx)
		jw.dxdx.Add(jw.dxdx, jw.eye)
		jw.dxdu.Scale(0.5, jw.dk1du)

		m.Dynamics(ws.xa, u, ws.k2)
		jw.jac(m, jm, ws.xa, u, jw.a2, jw.b2)
		jw.tmpNN.Mul(jw.a2, jw.dxdx)
		jw.dk2dx.Scale(dt, jw.tmpNN)
		jw.tmpNM.Mul(jw.a2, jw.dxdu)
		jw.tmpNM.Add(jw.tmpNM, jw.b2)
		jw.dk2du.Scale(dt, jw.tmpNM)
		for i := range ws.k2 {
			ws.k2[i] *= dt
		}
		for i := range ws.xb {
			ws.xb[i] = x[i] - ws.k1[i] + 2*ws.k2[i]
		}

		// dxb/dx = I - dk1dx + 2*dk2dx ; dxb/du = -dk1du + 2*dk2du
		jw.dxdx.Scale(2, jw.dk2dx)
		jw.dxdx.Sub(jw.dxdx, jw.dk1dx)
		jw.dxdx.Add(jw.dxdx, jw.eye)
		jw.dxdu.Scale(2, jw.dk2du)
		jw.dxdu.Sub(jw.dxdu, jw.dk1du)

		m.Dynamics(ws.xb, u, ws.k3)
		jw.jac(m, jm, ws.xb, u, jw.a3, jw.b3)
		jw.tmpNN.Mul(jw.a3, jw.dxdx)
		jw.dk3dx.Scale(dt, jw.tmpNN)
		jw.tmpNM.Mul(jw.a3, jw.dxdu)
		jw.tmpNM.Add(jw.tmpNM, jw.b3)
		jw.dk3du.Scale(dt, jw.tmpNM)

		// A = I + (dk1dx + 4*dk2dx + dk3dx)/6
		A.Scale(4, jw.dk2dx)
		A.Add(A, jw.dk1dx)
		A.Add(A, jw.dk3dx)
		A.Scale(1.0/6, A)
		A.Add(A, jw.eye)

		B.Scale(4, jw.dk2du)
		B.Add(B, jw.dk1du)
		B.Add(B, jw.dk3du)
		B.Scale(1.0/6, B)

	case RK4:
		m.Dynamics(x, u, ws.k1)
		jw.jac(m, jm, x, u, jw.a1, jw.b1)
		jw.dk1dx.CloneFrom(jw.a1)
		jw.dk1du.CloneFrom(jw.b1)
		axpy(ws.xa, x, ws.k1, dt/2)

		jw.dxdx.Scale(dt/2, jw.dk1dx)
		jw.dxdx.Add(jw.dxdx, jw.eye)
		jw.dxdu.Scale(dt/2, jw.dk1du)

		m.Dynamics(ws.xa, u, ws.k2)
		jw.jac(m, jm, ws.xa, u, jw.a2, jw.b2)
		jw.dk2dx.Mul(jw.a2, jw.dxdx)
		jw.tmpNM.Mul(jw.a2, jw.dxdu)
		jw.dk2du.Add(jw.tmpNM, jw.b2)
		axpy(ws.xb, x, ws.k2, dt/2)

		jw.dxdx.Scale(dt/2, jw.dk2dx)
		jw.dxdx.Add(jw.dxdx, jw.eye)
		jw.dxdu.Scale(dt/2, jw.dk2du)

		m.Dynamics(ws.xb, u, ws.k3)
		jw.jac(m, jm, ws.xb, u, jw.a3, jw.b3)
		jw.dk3dx.Mul(jw.a3, jw.dxdx)
		jw.tmpNM.Mul(jw.a3, jw.dxdu)
		jw.dk3du.Add(jw.tmpNM, jw.b3)
		axpy(ws.xc, x, ws.k3, dt)

		jw.dxdx.Scale(dt, jw.dk3dx)
		jw.dxdx.Add(jw.dxdx, jw.eye)
		jw.dxdu.Scale(dt, jw.dk3du)

		m.Dynamics(ws.xc, u, ws.k4)
		jw.jac(m, jm, ws.xc, u, jw.a4, jw.b4)
		jw.dk4dx.Mul(jw.a4, jw.dxdx)
		jw.tmpNM.Mul(jw.a4, jw.dxdu)
		jw.dk4du.Add(jw.tmpNM, jw.b4)

		// A = I + dt/6*(dk1dx+2dk2dx+2dk3dx+dk4dx)
		A.Scale(2, jw.dk2dx)
		A.Add(A, jw.dk1dx)
		jw.tmpNN.Scale(2, jw.dk3dx)
		A.Add(A, jw.tmpNN)
		A.Add(A, jw.dk4dx)
		A.Scale(dt/6, A)
		A.Add(A, jw.eye)

		B.Scale(2, jw.dk2du)
		B.Add(B, jw.dk1du)
		jw.tmpNM.Scale(2, jw.dk3du)
		B.Add(B, jw.tmpNM)
		B.Add(B, jw.dk4du)
		B.Scale(dt/6, B)

	default:
		panic("dynamics: unknown integrator rule")
	}
}
