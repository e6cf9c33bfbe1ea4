// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// linearPlant is control-affine with a known analytic Jacobian, used to
// cross-check the numdiff fallback and the three integrator rules against
// each other and against a closed-form solution.
type linearPlant struct{ decay float64 }

func (p linearPlant) StateDim() int   { return 1 }
func (p linearPlant) ControlDim() int { return 1 }
func (p linearPlant) Dynamics(x, u, xdot []float64) {
	xdot[0] = -p.decay*x[0] + u[0]
}

func (p linearPlant) Jacobian(x, u []float64, A, B *mat.Dense) {
	A.Set(0, 0, -p.decay)
	B.Set(0, 0, 1)
}

func TestParseRuleRejectsUnknownName(t *testing.T) {
	if _, err := ParseRule("euler"); err == nil {
		t.Fatal("expected an error for an unrecognized integrator name")
	}
}

func TestParseRuleAcceptsKnownNames(t *testing.T) {
	for _, name := range []string{"midpoint", "rk3", "rk4"} {
		if _, err := ParseRule(name); err != nil {
			t.Fatalf("ParseRule(%q): %v", name, err)
		}
	}
}

func TestDiscreteRulesAgreeOnLinearPlant(t *testing.T) {
	plant := linearPlant{decay: 0.5}
	x, u, dt := []float64{1}, []float64{0.2}, 0.01
	ws := NewWorkspace(1)

	want := x[0]*math.Exp(-plant.decay*dt) + u[0]/plant.decay*(1-math.Exp(-plant.decay*dt))

	for _, rule := range []Rule{Midpoint, RK3, RK4} {
		out := make([]float64, 1)
		Discrete(rule, plant, x, u, dt, ws, out)
		if math.Abs(out[0]-want) > 1e-6 {
			t.Fatalf("rule %v: got %v, want %v (closed-form)", rule, out[0], want)
		}
	}
}

func TestDiscreteRawStepSkipsIntegration(t *testing.T) {
	plant := linearPlant{decay: 0.5}
	x, u := []float64{1}, []float64{0.2}
	out := make([]float64, 1)
	Discrete(RawStep, plant, x, u, 0.01, nil, out)
	// RawStep calls Dynamics directly: for this plant that's xdot, not x'.
	want := -plant.decay*x[0] + u[0]
	if out[0] != want {
		t.Fatalf("RawStep = %v, want %v (Dynamics called directly)", out[0], want)
	}
}

func TestDiscreteJacobianMatchesAnalyticAcrossRules(t *testing.T) {
	plant := linearPlant{decay: 0.5}
	x, u, dt := []float64{1}, []float64{0.2}, 0.01
	jw := NewJacobianWorkspace(1, 1)

	for _, rule := range []Rule{Midpoint, RK3, RK4} {
		A, B := mat.NewDense(1, 1, nil), mat.NewDense(1, 1, nil)
		DiscreteJacobian(rule, plant, x, u, dt, jw, A, B)
		// For a linear scalar decay, the discrete Jacobian equals the
		// discrete map's own sensitivity, which central-difference recovers
		// to high precision regardless of whether the model has an
		// analytic continuous Jacobian.
		out0, out1 := make([]float64, 1), make([]float64, 1)
		ws := NewWorkspace(1)
		Discrete(rule, plant, []float64{1 + 1e-6}, u, dt, ws, out0)
		Discrete(rule, plant, []float64{1 - 1e-6}, u, dt, ws, out1)
		want := (out0[0] - out1[0]) / 2e-6
		if math.Abs(A.At(0, 0)-want) > 1e-4 {
			t.Fatalf("rule %v: dA/dx = %v, want ~%v", rule, A.At(0, 0), want)
		}
	}
}

// noJacobianPlant has no analytic Jacobian, forcing DiscreteJacobian onto
// the numdiff fallback. Forwarding methods (not embedding) keep it off
// linearPlant's Jacobian method set.
type noJacobianPlant struct{ p linearPlant }

func (n noJacobianPlant) StateDim() int   { return n.p.StateDim() }
func (n noJacobianPlant) ControlDim() int { return n.p.ControlDim() }
func (n noJacobianPlant) Dynamics(x, u, xdot []float64) { n.p.Dynamics(x, u, xdot) }

func TestDiscreteJacobianFallsBackToNumdiff(t *testing.T) {
	plant := noJacobianPlant{linearPlant{decay: 0.5}}
	if _, ok := HasAnalyticJacobian(plant); ok {
		t.Fatal("noJacobianPlant should not satisfy JacobianModel")
	}
	x, u, dt := []float64{1}, []float64{0.2}, 0.01
	jw := NewJacobianWorkspace(1, 1)
	A, B := mat.NewDense(1, 1, nil), mat.NewDense(1, 1, nil)
	DiscreteJacobian(RK4, plant, x, u, dt, jw, A, B)
	if math.Abs(A.At(0, 0)-(-0.5*dt+1)) > 1e-3 {
		t.Fatalf("A = %v, want ~%v", A.At(0, 0), -0.5*dt+1)
	}
}
