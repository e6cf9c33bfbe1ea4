// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trajectory

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/trajopt/ilqr/cost"
	"github.com/trajopt/ilqr/dynamics"
)

// doubleIntegrator is a minimal two-state, one-control linear fixture used
// only to exercise Spec/Data plumbing, not to claim any dynamical realism.
type doubleIntegrator struct{}

func (doubleIntegrator) StateDim() int   { return 2 }
func (doubleIntegrator) ControlDim() int { return 1 }
func (doubleIntegrator) Dynamics(x, u, xdot []float64) {
	xdot[0] = x[1]
	xdot[1] = u[0]
}

func baseProblem() Problem {
	q := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	r := mat.NewSymDense(1, []float64{0.1})
	return Problem{
		N: 5, Dt: 0.1, XInit: []float64{1, 0},
		Model: doubleIntegrator{}, Rule: dynamics.RK4,
		Stage:    (&cost.LQRCost{Q: q, R: r, Qf: q}).Stage(),
		Terminal: (&cost.LQRCost{Q: q, R: r, Qf: q}).Terminal(),
	}
}

func TestNewRejectsBadDimensions(t *testing.T) {
	p := baseProblem()
	p.XInit = []float64{1}
	if _, err := New(p); err == nil {
		t.Fatal("expected an error for mismatched XInit length")
	}
}

func TestNewRejectsMissingModel(t *testing.T) {
	p := baseProblem()
	p.Model = nil
	if _, err := New(p); err == nil {
		t.Fatal("expected an error for a nil model")
	}
}

func TestNewRejectsShortU0(t *testing.T) {
	p := baseProblem()
	p.U0 = [][]float64{{0}, {0}}
	if _, err := New(p); err == nil {
		t.Fatal("expected an error for U0 shorter than N")
	}
}

func TestNewAcceptsOversizedU0Truncated(t *testing.T) {
	p := baseProblem()
	p.U0 = make([][]float64, p.N+1) // one column too many
	for i := range p.U0 {
		p.U0[i] = []float64{float64(i)}
	}
	spec, err := New(p)
	if err != nil {
		t.Fatalf("New should truncate an oversized U0 rather than reject it: %v", err)
	}
	d := spec.Init()
	for k := 0; k < p.N; k++ {
		if d.U[k][0] != float64(k) {
			t.Fatalf("U[%d] = %v, want %v (truncated, not reindexed)", k, d.U[k][0], k)
		}
	}
}

func TestInitAllocatesAndSeedsXInit(t *testing.T) {
	p := baseProblem()
	spec, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d := spec.Init()
	if len(d.X) != p.N+1 || len(d.U) != p.N {
		t.Fatalf("X/U lengths = %d/%d, want %d/%d", len(d.X), len(d.U), p.N+1, p.N)
	}
	if d.X[0][0] != 1 || d.X[0][1] != 0 {
		t.Fatalf("X[0] = %v, want XInit", d.X[0])
	}
	if d.A[0] == nil || d.B[0] == nil {
		t.Fatal("A/B not allocated")
	}
}

func TestSwapExchangesNominalAndShadow(t *testing.T) {
	p := baseProblem()
	spec, _ := New(p)
	d := spec.Init()
	d.Xb[0][0] = 99
	orig := d.X
	d.Swap()
	if d.X[0][0] != 99 {
		t.Fatalf("X[0][0] after swap = %v, want 99", d.X[0][0])
	}
	if d.Xb[0][0] != orig[0][0] {
		t.Fatalf("Xb did not receive the old nominal buffer")
	}
}

func TestStageConstraintDimAllocatesPerKnotRows(t *testing.T) {
	p := baseProblem()
	p.Constraints = []cost.Constraint{&cost.BoundConstraint{
		UMin: []float64{-1}, UMax: []float64{1},
	}}
	spec, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := spec.StageConstraintDim(), 2; got != want {
		t.Fatalf("StageConstraintDim() = %d, want %d", got, want)
	}
	d := spec.Init()
	if len(d.C) != p.N || len(d.C[0]) != 2 {
		t.Fatalf("C shape = %d x %d, want %d x 2", len(d.C), len(d.C[0]), p.N)
	}
	if d.Equality[0] || d.Equality[1] {
		t.Fatalf("bound rows should not be marked equality")
	}
}

func TestTerminalConstraintDimAllocatesCf(t *testing.T) {
	p := baseProblem()
	p.TerminalConstraints = []cost.TerminalConstraint{&cost.GoalConstraint{XF: []float64{0, 0}}}
	spec, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got, want := spec.TerminalConstraintDim(), 2; got != want {
		t.Fatalf("TerminalConstraintDim() = %d, want %d", got, want)
	}
	d := spec.Init()
	if len(d.Cf) != 2 || !d.EqualityF[0] || !d.EqualityF[1] {
		t.Fatalf("Cf/EqualityF not set up for a goal constraint: %v %v", d.Cf, d.EqualityF)
	}
}
