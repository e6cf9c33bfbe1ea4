// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package infeasible implements the infeasible-start wrapper: given an
// initial state trajectory that is not dynamically consistent with
// an initial control guess, it augments the control vector with per-knot
// slack controls that make the guess exactly reproducible, adds per-knot
// slack-equality constraints to squeeze the slacks to zero, and strips the
// augmentation back out once the augmented Lagrangian has converged.
package infeasible

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/trajopt/ilqr/al"
	"github.com/trajopt/ilqr/cost"
	"github.com/trajopt/ilqr/dynamics"
	"github.com/trajopt/ilqr/ilqr"
	"github.com/trajopt/ilqr/trajectory"
)

// slackModel augments an (n,m) dynamics.Model with n trailing slack
// controls so that x' = f_d(x, u, dt) + s — the exact discrete-time
// addition. It is evaluated under dynamics.RawStep,
// so Dynamics below computes the *discrete* step directly: no integrator
// composes it, meaning the slack is added exactly once per knot rather than
// smeared across RK sub-stages.
type slackModel struct {
	inner dynamics.Model
	rule  dynamics.Rule
	dt    float64
	ws    *dynamics.Workspace
	jw    *dynamics.JacobianWorkspace
	n, m  int
}

func (s *slackModel) StateDim() int   { return s.n }
func (s *slackModel) ControlDim() int { return s.m + s.n }

// Dynamics computes the augmented discrete step x' = f_d(x,u[:m],dt) + u[m:].
func (s *slackModel) Dynamics(x, u, xdot []float64) {
	dynamics.Discrete(s.rule, s.inner, x, u[:s.m], s.dt, s.ws, xdot)
	for i := 0; i < s.n; i++ {
		xdot[i] += u[s.m+i]
	}
}

// Jacobian supplies the augmented discrete Jacobian analytically whenever
// the inner model does: the first m columns of B are the inner model's own
// discrete Jacobian under its rule, and the trailing n columns are the
// identity (∂x'/∂s = I, since the slack enters additively). HasAnalyticJacobian
// type-asserts the inner model once so problems with a plain dynamics.Model
// fall through to numdiff below exactly as an unwrapped problem would.
func (s *slackModel) Jacobian(x, u []float64, A, B *mat.Dense) {
	inner := B.Slice(0, s.n, 0, s.m).(*mat.Dense)
	dynamics.DiscreteJacobian(s.rule, s.inner, x, u[:s.m], s.dt, s.jw, A, inner)
	for i := 0; i < s.n; i++ {
		B.Set(i, s.m+i, 1)
	}
}

// hasJacobian reports whether the inner model supplies an analytic
// continuous Jacobian, in which case slackModel should too.
func hasJacobian(m dynamics.Model) bool {
	_, ok := dynamics.HasAnalyticJacobian(m)
	return ok
}

// slackConstraint is the per-knot equality s_k = 0 added to the augmented
// problem.
type slackConstraint struct{ n, m int }

func (c slackConstraint) Dim() int        { return c.n }
func (c slackConstraint) Kind() cost.Kind { return cost.Equality }
func (c slackConstraint) Expand(x, u []float64, cc []float64, Cx, Cu *mat.Dense) {
	Cx.Zero()
	Cu.Zero()
	for i := 0; i < c.n; i++ {
		cc[i] = u[c.m+i]
		Cu.Set(i, c.m+i, 1)
	}
}

// wrapStage and wrapConstraint adapt the caller's original (m-column)
// oracles to the augmented (m+n)-column control vector by slicing off the
// trailing slack columns before delegating — the original cost/constraint
// code never needs to know infeasible-start mode exists.
type wrapStage struct {
	inner cost.StageCost
	m, n  int
}

func (w wrapStage) Expand(x, u []float64, lx, lu []float64, lxx, luu, lux *mat.Dense) float64 {
	// luu/lux are the full (m+n)x(m+n) and (m+n)xn augmented buffers,
	// reused across iterations; the inner cost only ever writes its own
	// m-sized corner, so the slack rows/cols must be cleared here first —
	// otherwise cost.Augment's later .Add onto them would accumulate AL
	// penalty contributions on top of stale data from a previous outer
	// iteration instead of starting from zero.
	luu.Zero()
	lux.Zero()
	for i := range lu {
		lu[i] = 0
	}
	innerLuu := luu.Slice(0, w.m, 0, w.m).(*mat.Dense)
	innerLux := lux.Slice(0, w.m, 0, len(lx)).(*mat.Dense)
	return w.inner.Expand(x, u[:w.m], lx, lu[:w.m], lxx, innerLuu, innerLux)
}

type wrapConstraint struct {
	inner cost.Constraint
	m, n  int
}

func (w wrapConstraint) Dim() int        { return w.inner.Dim() }
func (w wrapConstraint) Kind() cost.Kind { return w.inner.Kind() }
func (w wrapConstraint) Expand(x, u []float64, c []float64, Cx, Cu *mat.Dense) {
	sub := Cu.Slice(0, w.inner.Dim(), 0, w.m).(*mat.Dense)
	w.inner.Expand(x, u[:w.m], c, Cx, sub)
}

// Problem is the augmented (m+n)-control problem plus the bookkeeping Solve
// needs to strip the result back down to the caller's original dimensions
// and re-run the polishing pass on the original model.
type Problem struct {
	Spec *trajectory.Spec

	n, m int
	dt   float64
	rule dynamics.Rule
	base dynamics.Model
}

// Wrap builds the augmented (m+n)-control problem from the caller's model
// and an initial state/control guess that need not be dynamically
// consistent: the slack at knot k is computed as
//
//	s_k = x0[k+1] - f_d(x0[k], u0[k], dt)
//
// making X0 exactly reproducible by the augmented dynamics. A larger
// initial penalty (default 1e3, see Solve) should be passed as
// outerOpts.InitialPenalty so the slack-equality rows are squeezed out
// faster than the caller's own constraints.
func Wrap(base trajectory.Problem, x0, u0 [][]float64) (*Problem, error) {
	if base.Model == nil {
		return nil, errors.New("infeasible: base.Model is required")
	}
	n, m := base.Model.StateDim(), base.Model.ControlDim()
	N := base.N
	if len(x0) != N+1 {
		return nil, fmt.Errorf("infeasible: x0 has %d knots, want %d", len(x0), N+1)
	}
	if len(u0) != N {
		return nil, fmt.Errorf("infeasible: u0 has %d knots, want %d", len(u0), N)
	}

	sm := &slackModel{
		inner: base.Model, rule: base.Rule, dt: base.Dt, n: n, m: m,
		ws: dynamics.NewWorkspace(n), jw: dynamics.NewJacobianWorkspace(n, m),
	}
	var aug dynamics.Model = sm
	if !hasJacobian(base.Model) {
		aug = noJacobian{sm}
	}

	u0Aug := make([][]float64, N)
	rolled := make([]float64, n)
	for k := 0; k < N; k++ {
		dynamics.Discrete(base.Rule, base.Model, x0[k], u0[k], base.Dt, sm.ws, rolled)
		row := make([]float64, m+n)
		copy(row, u0[k])
		for i := 0; i < n; i++ {
			row[m+i] = x0[k+1][i] - rolled[i]
		}
		u0Aug[k] = row
	}

	p := base
	p.Model = aug
	p.Rule = dynamics.RawStep
	p.XInit = append([]float64(nil), x0[0]...)
	p.U0 = u0Aug
	p.Stage = wrapStage{base.Stage, m, n}
	p.Terminal = base.Terminal

	cs := make([]cost.Constraint, 0, len(base.Constraints)+1)
	for _, c := range base.Constraints {
		cs = append(cs, wrapConstraint{c, m, n})
	}
	cs = append(cs, slackConstraint{n: n, m: m})
	p.Constraints = cs
	p.TerminalConstraints = base.TerminalConstraints

	spec, err := trajectory.New(p)
	if err != nil {
		return nil, fmt.Errorf("infeasible: %w", err)
	}
	return &Problem{Spec: spec, n: n, m: m, dt: base.Dt, rule: base.Rule, base: base.Model}, nil
}

// noJacobian presents only dynamics.Model's three methods, never Jacobian —
// embedding *slackModel directly would promote its Jacobian method too and
// make HasAnalyticJacobian report true even when the base model has no
// analytic Jacobian of its own. Explicit forwarding methods (instead of
// embedding) keep Jacobian off this type's method set, so such problems
// fall through to numdiff exactly as an unwrapped problem would.
type noJacobian struct{ m *slackModel }

func (n noJacobian) StateDim() int                 { return n.m.StateDim() }
func (n noJacobian) ControlDim() int                { return n.m.ControlDim() }
func (n noJacobian) Dynamics(x, u, xdot []float64) { n.m.Dynamics(x, u, xdot) }

// Result bundles the converged augmented-problem summary plus the maximum
// slack magnitude observed ("final slack controls within the constraint
// tolerance").
type Result struct {
	*al.Result
	MaxSlack float64
}

// Solve runs the augmented Lagrangian + iLQR solver on the augmented
// problem, then strips the slack columns and re-runs one warm-started
// unconstrained polishing iLQR pass on the original model. The returned
// trajectory.Data is the polished, unaugmented result.
func Solve(ctx context.Context, p *Problem, innerOpts ilqr.Options, outerOpts al.Options, polishOpts ilqr.Options) (*Result, *trajectory.Data, error) {
	if outerOpts.InitialPenalty == 0 {
		outerOpts.InitialPenalty = 1e3
	}
	drv, err := al.New(p.Spec, innerOpts, outerOpts)
	if err != nil {
		return nil, nil, err
	}
	w := drv.Init()
	res := drv.Solve(ctx, w)

	maxSlack := 0.0
	n, m := p.n, p.m
	for _, u := range w.Inner.Data.U {
		for i := 0; i < n; i++ {
			if v := u[m+i]; v > maxSlack {
				maxSlack = v
			} else if -v > maxSlack {
				maxSlack = -v
			}
		}
	}

	stripped := strip(p, w.Inner.Data)
	polished, err := polish(ctx, p.base, p.rule, p.dt, stripped, polishOpts)
	if err != nil {
		return nil, nil, err
	}

	return &Result{Result: res, MaxSlack: maxSlack}, polished, nil
}

// strip copies X and the first m control columns out of the augmented
// Data's trajectory, discarding the slack columns. The result is a bare
// carrier for X/U/N — it is never re-Init'd, only read by polish to seed a
// fresh Spec's own Data.
func strip(p *Problem, d *trajectory.Data) *trajectory.Data {
	out := &trajectory.Data{N: d.N}
	out.X = make([][]float64, len(d.X))
	for k, x := range d.X {
		out.X[k] = append([]float64(nil), x...)
	}
	out.U = make([][]float64, len(d.U))
	for k, u := range d.U {
		out.U[k] = append([]float64(nil), u[:p.m]...)
	}
	return out
}

// polish re-runs one unconstrained iLQR pass on the original (unaugmented)
// model, warm-started from the stripped trajectory. The running cost is
// negligible: polishing only restores exact dynamic
// feasibility after the slack-driven AL solve, it should not meaningfully
// move the trajectory the AL loop already converged.
func polish(ctx context.Context, base dynamics.Model, rule dynamics.Rule, dt float64, stripped *trajectory.Data, opts ilqr.Options) (*trajectory.Data, error) {
	n, m := base.StateDim(), base.ControlDim()
	Q := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		Q.SetSym(i, i, 1e-9)
	}
	R := mat.NewSymDense(m, nil)
	for i := 0; i < m; i++ {
		R.SetSym(i, i, 1e-9)
	}
	lqr := &cost.LQRCost{Q: Q, R: R, Qf: Q}

	problem := trajectory.Problem{
		N: stripped.N, Dt: dt, XInit: stripped.X[0],
		Model: base, Rule: rule,
		Stage: lqr.Stage(), Terminal: lqr.Terminal(),
		U0: stripped.U,
	}
	spec, err := trajectory.New(problem)
	if err != nil {
		return nil, fmt.Errorf("infeasible: polish: %w", err)
	}
	opt, err := ilqr.New(spec, opts)
	if err != nil {
		return nil, fmt.Errorf("infeasible: polish: %w", err)
	}
	w := opt.Init()
	opt.Fit(ctx, w)
	return w.Data, nil
}
