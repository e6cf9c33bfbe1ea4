// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ilqr

import (
	"context"
	"errors"
	"math"
	"runtime"

	"github.com/trajopt/ilqr/dynamics"
	"github.com/trajopt/ilqr/trajectory"
)

// Optimizer is a validated trajectory.Spec paired with solve Options.
type Optimizer struct {
	spec *trajectory.Spec
	opts Options
}

// New validates opts against spec and returns an Optimizer. Construction
// never fails on the spec itself — trajectory.New already validated it —
// but a caller-supplied Options with internally inconsistent bounds (e.g.
// RegMin > RegMax) is rejected here.
func New(spec *trajectory.Spec, opts Options) (*Optimizer, error) {
	if spec == nil {
		return nil, errors.New("ilqr: spec is required")
	}
	opts.fillDefaults()
	if opts.RegMin > opts.RegMax {
		return nil, errors.New("ilqr: RegMin must not exceed RegMax")
	}
	return &Optimizer{spec: spec, opts: opts}, nil
}

// CostTolerance reports the exit tolerance the next Fit call will use.
func (o *Optimizer) CostTolerance() float64 { return o.opts.CostTolerance }

// SetCostTolerance overrides the exit tolerance for every subsequent Fit
// call, without touching any other Options field. It exists for callers
// like package al that re-solve the same Optimizer under a two-tier
// tolerance scheme — a loose one for intermediate outer passes, the
// caller-configured one for the final pass — rather than rebuilding the
// Optimizer (and its Workspace) between outer iterations.
func (o *Optimizer) SetCostTolerance(tol float64) { o.opts.CostTolerance = tol }

// Workspace bundles the per-solve trajectory.Data with the solver's own
// scratch (Riccati recursion, Jacobian estimation, integrator stages), all
// allocated once by Init.
type Workspace struct {
	Data *trajectory.Data

	bw  *backwardWorkspace
	bws *sqrtBackwardWorkspace
	jws []*dynamics.JacobianWorkspace // one per potential parallel worker
	rs  *dynamics.Workspace
	fw  *forwardWorkspace
}

// Init allocates a Workspace for o. Separate workspaces are required for
// concurrent solves of the same Optimizer.
func (o *Optimizer) Init() *Workspace {
	n, m := o.spec.StateDim(), o.spec.ControlDim()

	workers := 1
	if o.opts.Parallel {
		workers = runtime.GOMAXPROCS(0)
		if workers > o.spec.N {
			workers = o.spec.N
		}
		if workers < 1 {
			workers = 1
		}
	}
	jws := make([]*dynamics.JacobianWorkspace, workers)
	for i := range jws {
		jws[i] = dynamics.NewJacobianWorkspace(n, m)
	}

	w := &Workspace{
		Data: o.spec.Init(),
		jws:  jws,
		rs:   dynamics.NewWorkspace(n),
		fw:   newForwardWorkspace(n, m, o.spec.StageConstraintDim(), o.spec.TerminalConstraintDim()),
	}
	if o.opts.SquareRoot {
		w.bws = newSqrtBackwardWorkspace(n, m, o.spec.N)
	} else {
		w.bw = newBackwardWorkspace(n, m)
	}
	return w
}

// Fit runs the iLQR loop to convergence or failure, mutating w.Data in
// place. It checks ctx at the start of every iteration, per the cooperative
// cancellation contract every solver in this module follows.
func (o *Optimizer) Fit(ctx context.Context, w *Workspace) *Result {
	spec, opts := o.spec, o.opts
	d := w.Data

	rolloutNominal(spec, d, w.rs)
	expand(spec, d, opts.Parallel)
	prevCost := d.Cost

	rho := opts.RegInit
	status := MaxIterationsReached
	iter := 0

	for iter = 1; iter <= opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			status = Cancelled
			break
		}

		linearize(spec, d, w.jws, opts.Parallel)

		var dv1, dv2 float64
		var ok bool
		for {
			if opts.SquareRoot {
				dv1, dv2, ok = backwardPassSqrt(spec, d, w.bws, rho)
			} else {
				dv1, dv2, ok = backwardPass(spec, d, w.bw, rho)
			}
			if ok {
				break
			}
			rho *= opts.RegScaleUp
			if rho > opts.RegMax {
				status = RegularizationMax
				break
			}
		}
		if !ok {
			break
		}

		accepted := false
		var newCost float64
		alpha := 1.0
		for i := 0; i <= opts.LineSearchIterations; i++ {
			cand, finite := forwardPass(spec, d, w.rs, w.fw, alpha)
			if finite {
				expected := -(alpha*dv1 + alpha*alpha*dv2)
				actual := prevCost - cand
				if expected <= 0 || actual >= opts.LineSearchSufficientDecrease*expected {
					newCost = cand
					accepted = true
					break
				}
			}
			alpha /= 2
		}

		if !accepted {
			rho *= opts.RegScaleUp
			if rho > opts.RegMax {
				status = LineSearchFailure
				break
			}
			continue
		}

		d.Swap()
		expand(spec, d, opts.Parallel)
		rho = math.Max(rho*opts.RegScaleDown, opts.RegMin)

		gradNorm := feedforwardNorm(d)
		relDecrease := (prevCost - newCost) / math.Max(1, math.Abs(prevCost))
		prevCost = d.Cost

		if relDecrease >= 0 && relDecrease < opts.CostTolerance {
			status = Converged
			break
		}
		if gradNorm < opts.GradientTolerance {
			status = Converged
			break
		}
		status = MaxIterationsReached
	}
	if iter > opts.MaxIterations {
		iter = opts.MaxIterations
	}

	return &Result{
		OK: status == Converged,
		Summary: Summary{
			Status:   status,
			NumIter:  iter,
			Cost:     d.Cost,
			GradNorm: feedforwardNorm(d),
		},
	}
}

// feedforwardNorm is the gradient surrogate max_k ||d_k||_inf: the largest
// per-knot feedforward infinity norm, not a single flattened norm over
// every knot and control at once — the latter would scale with sqrt(N*m)
// and make GradientTolerance horizon-dependent.
func feedforwardNorm(d *trajectory.Data) float64 {
	maxNorm := 0.0
	for _, dk := range d.D {
		if n := infNorm(dk); n > maxNorm {
			maxNorm = n
		}
	}
	return maxNorm
}

func infNorm(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

// rolloutNominal propagates d.X[0] forward through the current d.U to make
// the nominal trajectory dynamically consistent before the first backward
// pass. It leaves X[0] unchanged and overwrites X[1:].
func rolloutNominal(spec *trajectory.Spec, d *trajectory.Data, rs *dynamics.Workspace) {
	for k := 0; k < spec.N; k++ {
		dynamics.Discrete(spec.Rule, spec.Model, d.X[k], d.U[k], spec.Dt, rs, d.X[k+1])
	}
}
