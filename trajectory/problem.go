// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trajectory holds the problem description and the per-knot working
// buffers the solver mutates in place, following a Problem/New/Workspace
// lifecycle: construction-time validation, then a single allocation reused
// for the life of the solve.
package trajectory

import (
	"errors"
	"fmt"

	"github.com/trajopt/ilqr/cost"
	"github.com/trajopt/ilqr/dynamics"
)

// Problem is the immutable description of a finite-horizon trajectory
// optimization: N control intervals of length Dt, starting from XInit,
// under Model integrated with Rule, penalized by Stage/Terminal and
// constrained by Constraints/TerminalConstraints.
type Problem struct {
	N     int
	Dt    float64
	XInit []float64

	Model dynamics.Model
	Rule  dynamics.Rule

	Stage    cost.StageCost
	Terminal cost.TerminalCost

	Constraints         []cost.Constraint
	TerminalConstraints []cost.TerminalConstraint

	// U0 optionally seeds the initial control guess. If it has N columns it
	// is used as-is; if it has more, Spec.Init drops the extra trailing
	// columns and logs a warning via log/slog (see Open Question decisions) —
	// trajectory.New itself only rejects fewer than N.
	U0 [][]float64
}

// New validates p and returns a Spec ready for Init. Every error is
// returned at construction time; New never returns a partially valid Spec.
func New(p Problem) (*Spec, error) {
	if p.Model == nil {
		return nil, errors.New("trajectory: model is required")
	}
	n, m := p.Model.StateDim(), p.Model.ControlDim()

	switch {
	case p.N <= 0:
		return nil, errors.New("trajectory: N must be greater than 0")
	case p.Dt <= 0:
		return nil, errors.New("trajectory: Dt must be greater than 0")
	case len(p.XInit) != n:
		return nil, fmt.Errorf("trajectory: XInit has length %d, want %d", len(p.XInit), n)
	case p.Stage == nil:
		return nil, errors.New("trajectory: Stage cost is required")
	case p.Terminal == nil:
		return nil, errors.New("trajectory: Terminal cost is required")
	}

	if len(p.U0) > 0 && len(p.U0) < p.N {
		return nil, fmt.Errorf("trajectory: U0 has %d columns, fewer than N=%d", len(p.U0), p.N)
	}
	for k, u := range p.U0 {
		if len(u) != m {
			return nil, fmt.Errorf("trajectory: U0[%d] has length %d, want %d", k, len(u), m)
		}
	}

	pStage := 0
	for i, c := range p.Constraints {
		if c == nil {
			return nil, fmt.Errorf("trajectory: Constraints[%d] is nil", i)
		}
		pStage += c.Dim()
	}
	pTerm := 0
	for i, c := range p.TerminalConstraints {
		if c == nil {
			return nil, fmt.Errorf("trajectory: TerminalConstraints[%d] is nil", i)
		}
		pTerm += c.Dim()
	}

	spec := &Spec{
		Problem: p,
		n:       n, m: m,
		pStage: pStage, pTerm: pTerm,
	}
	return spec, nil
}

// Spec is a validated Problem, safe to Init any number of times.
type Spec struct {
	Problem
	n, m          int
	pStage, pTerm int
}

// StateDim and ControlDim report the validated dimensions.
func (s *Spec) StateDim() int   { return s.n }
func (s *Spec) ControlDim() int { return s.m }

// StageConstraintDim reports the stacked dimension of every per-knot
// Constraint; TerminalConstraintDim reports the same for the final knot.
func (s *Spec) StageConstraintDim() int    { return s.pStage }
func (s *Spec) TerminalConstraintDim() int { return s.pTerm }
