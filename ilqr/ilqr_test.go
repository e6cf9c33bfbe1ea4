// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ilqr

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/trajopt/ilqr/cost"
	"github.com/trajopt/ilqr/dynamics"
	"github.com/trajopt/ilqr/models"
	"github.com/trajopt/ilqr/trajectory"
)

// doubleIntegrator is linear and control-affine, so an unconstrained
// quadratic-cost problem over it is exactly LQR: the Gauss-Newton backward
// pass should reach the optimum in essentially one accepted step.
type doubleIntegrator struct{}

func (doubleIntegrator) StateDim() int   { return 2 }
func (doubleIntegrator) ControlDim() int { return 1 }
func (doubleIntegrator) Dynamics(x, u, xdot []float64) {
	xdot[0] = x[1]
	xdot[1] = u[0]
}

func buildSpec(t *testing.T, extra func(*trajectory.Problem)) *trajectory.Spec {
	t.Helper()
	q := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	r := mat.NewSymDense(1, []float64{0.1})
	p := trajectory.Problem{
		N: 20, Dt: 0.05, XInit: []float64{1, 0},
		Model: doubleIntegrator{}, Rule: dynamics.RK4,
		Stage:    (&cost.LQRCost{Q: q, R: r, Qf: q}).Stage(),
		Terminal: (&cost.LQRCost{Q: q, R: r, Qf: q}).Terminal(),
	}
	if extra != nil {
		extra(&p)
	}
	spec, err := trajectory.New(p)
	if err != nil {
		t.Fatalf("trajectory.New: %v", err)
	}
	return spec
}

func TestFitConvergesOnUnconstrainedLQR(t *testing.T) {
	spec := buildSpec(t, nil)
	opt, err := New(spec, Options{MaxIterations: 50})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := opt.Init()
	res := opt.Fit(context.Background(), w)
	if !res.OK {
		t.Fatalf("Fit did not converge: status=%v cost=%v", res.Status, res.Cost)
	}
	xf := w.Data.X[spec.N]
	if mag := xf[0]*xf[0] + xf[1]*xf[1]; mag > 0.5 {
		t.Fatalf("final state not driven toward the origin: %v", xf)
	}
}

func TestFitRespectsControlBounds(t *testing.T) {
	spec := buildSpec(t, func(p *trajectory.Problem) {
		p.Constraints = []cost.Constraint{&cost.BoundConstraint{UMin: []float64{-0.5}, UMax: []float64{0.5}}}
	})
	opt, err := New(spec, Options{MaxIterations: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w := opt.Init()
	opt.Fit(context.Background(), w)
	for k, u := range w.Data.U {
		if u[0] > 0.5+1e-6 || u[0] < -0.5-1e-6 {
			t.Fatalf("U[%d] = %v violates bounds", k, u)
		}
	}
}

func TestFitCancelsOnContextDone(t *testing.T) {
	spec := buildSpec(t, nil)
	opt, _ := New(spec, Options{MaxIterations: 50})
	w := opt.Init()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := opt.Fit(ctx, w)
	if res.Status != Cancelled {
		t.Fatalf("status = %v, want Cancelled", res.Status)
	}
}

func TestNewRejectsNilSpec(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatal("expected an error for a nil spec")
	}
}

func TestNewRejectsInconsistentRegBounds(t *testing.T) {
	spec := buildSpec(t, nil)
	if _, err := New(spec, Options{RegMin: 10, RegMax: 1}); err == nil {
		t.Fatal("expected an error for RegMin > RegMax")
	}
}

func TestFitParallelMatchesSequential(t *testing.T) {
	spec := buildSpec(t, nil)
	seq, _ := New(spec, Options{MaxIterations: 50})
	par, _ := New(spec, Options{MaxIterations: 50, Parallel: true})

	wSeq := seq.Init()
	resSeq := seq.Fit(context.Background(), wSeq)
	wPar := par.Init()
	resPar := par.Fit(context.Background(), wPar)

	if !resSeq.OK || !resPar.OK {
		t.Fatalf("expected both to converge: seq=%v par=%v", resSeq.Status, resPar.Status)
	}
	if diff := resSeq.Cost - resPar.Cost; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("parallel expand() changed the converged cost: seq=%v par=%v", resSeq.Cost, resPar.Cost)
	}
}

func TestFitSquareRootMatchesStandardBackwardPass(t *testing.T) {
	spec := buildSpec(t, nil)
	std, _ := New(spec, Options{MaxIterations: 50})
	sqrt, _ := New(spec, Options{MaxIterations: 50, SquareRoot: true})

	wStd := std.Init()
	resStd := std.Fit(context.Background(), wStd)
	wSqrt := sqrt.Init()
	resSqrt := sqrt.Fit(context.Background(), wSqrt)

	if !resStd.OK || !resSqrt.OK {
		t.Fatalf("expected both to converge: std=%v sqrt=%v", resStd.Status, resSqrt.Status)
	}
	if diff := resStd.Cost - resSqrt.Cost; diff > 1e-4 || diff < -1e-4 {
		t.Fatalf("square-root backward pass diverged from the standard one: std=%v sqrt=%v", resStd.Cost, resSqrt.Cost)
	}
}

// TestFitAgreesAcrossIntegratorRules is a cross-integrator consistency
// check: midpoint/RK3/RK4 on the same pendulum swing-up should converge
// to final costs within 10% of each other.
func TestFitAgreesAcrossIntegratorRules(t *testing.T) {
	build := func(rule dynamics.Rule) *trajectory.Spec {
		Q := mat.NewSymDense(2, []float64{0.1, 0, 0, 0.1})
		R := mat.NewSymDense(1, []float64{0.1})
		Qf := mat.NewSymDense(2, []float64{200, 0, 0, 200})
		lqr := &cost.LQRCost{Q: Q, R: R, Qf: Qf, XRefFinal: []float64{math.Pi, 0}}
		p := trajectory.Problem{
			N: 80, Dt: 0.02, XInit: []float64{0, 0},
			Model: models.NewPendulum(), Rule: rule,
			Stage: lqr.Stage(), Terminal: lqr.Terminal(),
		}
		spec, err := trajectory.New(p)
		if err != nil {
			t.Fatalf("trajectory.New: %v", err)
		}
		return spec
	}

	costs := make(map[dynamics.Rule]float64)
	for _, rule := range []dynamics.Rule{dynamics.Midpoint, dynamics.RK3, dynamics.RK4} {
		opt, err := New(build(rule), Options{MaxIterations: 150})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		w := opt.Init()
		res := opt.Fit(context.Background(), w)
		if !res.OK {
			t.Fatalf("rule %v did not converge: %v", rule, res.Status)
		}
		costs[rule] = res.Cost
	}

	ref := costs[dynamics.RK4]
	for rule, c := range costs {
		if rel := math.Abs(c-ref) / math.Max(1, math.Abs(ref)); rel > 0.10 {
			t.Fatalf("rule %v cost %v differs from RK4 cost %v by more than 10%%", rule, c, ref)
		}
	}
}
