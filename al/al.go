// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package al implements the outer augmented-Lagrangian loop: it wraps an
// ilqr.Optimizer, re-solving the inner unconstrained(-looking) problem
// after every multiplier/penalty update until every constraint is
// satisfied to tolerance.
package al

import (
	"context"
	"errors"
	"math"

	"github.com/trajopt/ilqr/ilqr"
	"github.com/trajopt/ilqr/trajectory"
)

// Options configures the outer loop. Zero fields take the documented
// default from DefaultOptions.
type Options struct {
	MaxOuterIterations int
	// ConstraintTolerance is the maximum constraint violation (c_max)
	// accepted as converged.
	ConstraintTolerance float64
	// CostToleranceIntermediate is the inner iLQR cost_tolerance used for
	// every outer pass except the final allotted one, which uses the
	// inner Optimizer's own (tighter) CostTolerance instead — the two-tier
	// exit scheme so intermediate AL iterations converge loosely and only
	// the last pass demands tight convergence.
	CostToleranceIntermediate float64
	// InitialPenalty seeds every μ entry before the first inner solve.
	InitialPenalty float64
	// PenaltyScale multiplies μ after every outer iteration that does not
	// end the solve as converged (c_max above ConstraintTolerance, or an
	// inner solve that did not converge); spec's default matches the common
	// AL choice.
	PenaltyScale float64
	MaxPenalty   float64
}

// DefaultOptions returns the outer-loop defaults used for a zero Options.
func DefaultOptions() Options {
	return Options{
		MaxOuterIterations:        25,
		ConstraintTolerance:       1e-2,
		CostToleranceIntermediate: 1e-2,
		InitialPenalty:            1,
		PenaltyScale:              100,
		MaxPenalty:                1e8,
	}
}

func (o *Options) fillDefaults() {
	d := DefaultOptions()
	if o.MaxOuterIterations == 0 {
		o.MaxOuterIterations = d.MaxOuterIterations
	}
	if o.ConstraintTolerance == 0 {
		o.ConstraintTolerance = d.ConstraintTolerance
	}
	if o.CostToleranceIntermediate == 0 {
		o.CostToleranceIntermediate = d.CostToleranceIntermediate
	}
	if o.InitialPenalty == 0 {
		o.InitialPenalty = d.InitialPenalty
	}
	if o.PenaltyScale == 0 {
		o.PenaltyScale = d.PenaltyScale
	}
	if o.MaxPenalty == 0 {
		o.MaxPenalty = d.MaxPenalty
	}
}

// Driver pairs a validated trajectory.Spec with the inner iLQR Optimizer
// and the outer-loop Options.
type Driver struct {
	spec  *trajectory.Spec
	inner *ilqr.Optimizer
	opts  Options

	// finalCostTolerance is innerOpts.CostTolerance as configured by the
	// caller (after fillDefaults), reapplied to the inner Optimizer for the
	// final outer iteration. Every earlier iteration instead runs under
	// opts.CostToleranceIntermediate, since whether an iteration turns out
	// to be the one that satisfies ConstraintTolerance can't be known before
	// Fit returns.
	finalCostTolerance float64
}

// New builds a Driver. innerOpts configures every inner ilqr.Fit call.
func New(spec *trajectory.Spec, innerOpts ilqr.Options, opts Options) (*Driver, error) {
	if spec == nil {
		return nil, errors.New("al: spec is required")
	}
	inner, err := ilqr.New(spec, innerOpts)
	if err != nil {
		return nil, err
	}
	opts.fillDefaults()
	return &Driver{spec: spec, inner: inner, opts: opts, finalCostTolerance: inner.CostTolerance()}, nil
}

// Workspace bundles the inner solver's Workspace; Driver never needs scratch
// of its own beyond what's already in trajectory.Data (Lambda/Mu/Active).
type Workspace struct {
	Inner *ilqr.Workspace
}

// Init allocates a Workspace.
func (drv *Driver) Init() *Workspace {
	w := &Workspace{Inner: drv.inner.Init()}
	d := w.Inner.Data
	for k := range d.Mu {
		for i := range d.Mu[k] {
			d.Mu[k][i] = drv.opts.InitialPenalty
		}
	}
	for i := range d.MuF {
		d.MuF[i] = drv.opts.InitialPenalty
	}
	return w
}

// Status mirrors ilqr.Status for the outer loop's own terminal conditions.
type Status = ilqr.Status

// Summary reports how Solve ended.
type Summary struct {
	Status       Status
	NumOuterIter int
	NumInnerIter int
	CMax         float64
	Cost         float64
}

// Result is the outcome of a Solve call.
type Result struct {
	OK bool
	Summary
}

// Solve runs the outer loop: inner iLQR solve, constraint-violation check,
// multiplier/penalty update, repeat, per spec's augmented-Lagrangian outer
// iteration.
func (drv *Driver) Solve(ctx context.Context, w *Workspace) *Result {
	d := w.Inner.Data
	status := ilqr.MaxIterationsReached
	totalInner := 0
	outer := 0

outer_loop:
	for outer = 1; outer <= drv.opts.MaxOuterIterations; outer++ {
		if err := ctx.Err(); err != nil {
			status = ilqr.Cancelled
			break
		}

		if outer == drv.opts.MaxOuterIterations {
			drv.inner.SetCostTolerance(drv.finalCostTolerance)
		} else {
			drv.inner.SetCostTolerance(drv.opts.CostToleranceIntermediate)
		}

		res := drv.inner.Fit(ctx, w.Inner)
		totalInner += res.NumIter

		// A fatal or cancelled inner solve leaves w.Inner.Data mid-sweep —
		// its cMax may look small purely by accident of the last accepted
		// step, so these statuses propagate straight to the outer result
		// rather than being weighed against constraintViolation below.
		switch res.Status {
		case ilqr.Cancelled, ilqr.LineSearchFailure, ilqr.RegularizationMax:
			status = res.Status
			break outer_loop
		}

		cMax := constraintViolation(d)
		if cMax <= drv.opts.ConstraintTolerance && res.Status == ilqr.Converged {
			status = ilqr.Converged
			break
		}

		updateMultipliers(d, drv.opts.PenaltyScale, drv.opts.MaxPenalty)
		status = ilqr.MaxIterationsReached
	}
	if outer > drv.opts.MaxOuterIterations {
		outer = drv.opts.MaxOuterIterations
	}

	return &Result{
		OK: status == ilqr.Converged,
		Summary: Summary{
			Status:       status,
			NumOuterIter: outer,
			NumInnerIter: totalInner,
			CMax:         constraintViolation(d),
			Cost:         d.Cost,
		},
	}
}

// constraintViolation returns c_max: the largest equality |c_i| or
// inequality max(c_i,0) across every knot.
func constraintViolation(d *trajectory.Data) float64 {
	cMax := 0.0
	for k := range d.C {
		for i, c := range d.C[k] {
			v := violation(c, d.Equality[i])
			if v > cMax {
				cMax = v
			}
		}
	}
	for i, c := range d.Cf {
		v := violation(c, d.EqualityF[i])
		if v > cMax {
			cMax = v
		}
	}
	return cMax
}

func violation(c float64, equality bool) float64 {
	if equality {
		return math.Abs(c)
	}
	return math.Max(c, 0)
}

// updateMultipliers applies the Hestenes-Powell update λ ← λ + μc,
// projecting inequality multipliers onto λ ≥ 0, then scales μ up to
// MaxPenalty.
func updateMultipliers(d *trajectory.Data, scale, maxPenalty float64) {
	for k := range d.Lambda {
		for i := range d.Lambda[k] {
			lam := d.Lambda[k][i] + d.Mu[k][i]*d.C[k][i]
			if !d.Equality[i] && lam < 0 {
				lam = 0
			}
			d.Lambda[k][i] = lam
			d.Mu[k][i] = math.Min(d.Mu[k][i]*scale, maxPenalty)
		}
	}
	for i := range d.LambdaF {
		lam := d.LambdaF[i] + d.MuF[i]*d.Cf[i]
		if !d.EqualityF[i] && lam < 0 {
			lam = 0
		}
		d.LambdaF[i] = lam
		d.MuF[i] = math.Min(d.MuF[i]*scale, maxPenalty)
	}
}
