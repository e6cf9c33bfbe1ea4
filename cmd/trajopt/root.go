// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command trajopt is a demonstration CLI that runs one of the library's
// fixture models end-to-end through the augmented-Lagrangian + iLQR solver
// and prints a convergence summary. It is a convenience wrapper around the
// library, not part of the solver core.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trajopt/ilqr/al"
	"github.com/trajopt/ilqr/dynamics"
	"github.com/trajopt/ilqr/ilqr"
	"github.com/trajopt/ilqr/trajectory"
)

var flags struct {
	config   string
	model    string
	rule     string
	horizon  int
	dt       float64
	parallel bool
	logLevel string
	timeout  time.Duration
}

// solverOverrides carries the subset of runConfig that maps onto
// ilqr.Options/al.Options rather than a cobra flag; applyConfig fills it in
// when --config names a YAML overlay, and runSolve applies it after
// DefaultOptions so an unset (zero) override keeps the library default.
var solverOverrides runConfig

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trajopt",
		Short: "Run a fixture model through the constrained trajectory solver",
		RunE:  runSolve,
	}
	cmd.Flags().StringVar(&flags.config, "config", "", "path to a YAML config overlay")
	cmd.Flags().StringVar(&flags.model, "model", "pendulum", "fixture model: pendulum or cartpole")
	cmd.Flags().StringVar(&flags.rule, "rule", "rk4", "integrator rule: midpoint, rk3, or rk4")
	cmd.Flags().IntVar(&flags.horizon, "horizon", 100, "number of control intervals N")
	cmd.Flags().Float64Var(&flags.dt, "dt", 0.02, "step size in seconds")
	cmd.Flags().BoolVar(&flags.parallel, "parallel", false, "expand cost/Jacobians across knots concurrently")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "slog level: debug, info, warn, or error")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "solve timeout, 0 disables")
	return cmd
}

func runSolve(cmd *cobra.Command, args []string) error {
	if flags.config != "" {
		cfg, err := loadConfig(flags.config)
		if err != nil {
			return err
		}
		applyConfig(cfg)
	}

	level, err := parseLogLevel(flags.logLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	rule, err := dynamics.ParseRule(flags.rule)
	if err != nil {
		return fmt.Errorf("trajopt: %w", err)
	}
	fx, err := lookupFixture(flags.model)
	if err != nil {
		return err
	}

	problem := buildProblem(fx, rule, flags.horizon, flags.dt)
	spec, err := trajectory.New(problem)
	if err != nil {
		return fmt.Errorf("trajopt: %w", err)
	}

	innerOpts := ilqr.DefaultOptions()
	innerOpts.Parallel = flags.parallel
	if solverOverrides.MaxIterations > 0 {
		innerOpts.MaxIterations = solverOverrides.MaxIterations
	}
	if solverOverrides.LineSearchIterations > 0 {
		innerOpts.LineSearchIterations = solverOverrides.LineSearchIterations
	}
	outerOpts := al.DefaultOptions()
	if solverOverrides.MaxOuterIterations > 0 {
		outerOpts.MaxOuterIterations = solverOverrides.MaxOuterIterations
	}
	if solverOverrides.InitialPenalty > 0 {
		outerOpts.InitialPenalty = solverOverrides.InitialPenalty
	}

	drv, err := al.New(spec, innerOpts, outerOpts)
	if err != nil {
		return fmt.Errorf("trajopt: %w", err)
	}
	w := drv.Init()

	ctx := context.Background()
	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	start := time.Now()
	res := drv.Solve(ctx, w)
	elapsed := time.Since(start)

	logger.Info("solve finished",
		"model", flags.model, "rule", rule.String(),
		"status", res.Status.String(),
		"outer_iterations", res.NumOuterIter,
		"inner_iterations", res.NumInnerIter,
		"cost", res.Cost,
		"constraint_violation", res.CMax,
		"elapsed", elapsed,
	)
	if !res.OK {
		return fmt.Errorf("trajopt: solve did not converge: %s", res.Status)
	}
	return nil
}

func applyConfig(cfg runConfig) {
	solverOverrides = cfg
	if cfg.Model != "" {
		flags.model = cfg.Model
	}
	if cfg.Rule != "" {
		flags.rule = cfg.Rule
	}
	if cfg.Horizon > 0 {
		flags.horizon = cfg.Horizon
	}
	if cfg.Dt > 0 {
		flags.dt = cfg.Dt
	}
	if cfg.LogLevel != "" {
		flags.logLevel = cfg.LogLevel
	}
	flags.parallel = flags.parallel || cfg.Parallel
}

func parseLogLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("trajopt: unknown log level %q", name)
	}
}
