// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// runConfig is the decoded shape of a --config YAML file, overlaid on top of
// the flag defaults. Fields mirror the subset of ilqr.Options/al.Options a
// fixture run cares about; the rest keep their library defaults.
type runConfig struct {
	Model    string  `mapstructure:"model"`
	Rule     string  `mapstructure:"rule"`
	Horizon  int     `mapstructure:"horizon"`
	Dt       float64 `mapstructure:"dt"`
	Parallel bool    `mapstructure:"parallel"`

	MaxIterations        int     `mapstructure:"max_iterations"`
	LineSearchIterations int     `mapstructure:"line_search_iterations"`
	MaxOuterIterations   int     `mapstructure:"max_outer_iterations"`
	InitialPenalty       float64 `mapstructure:"initial_penalty"`

	LogLevel string `mapstructure:"log_level"`
}

// loadConfig reads a YAML document at path into a generic map, then decodes
// it through mapstructure so unknown keys are reported rather than silently
// dropped (ErrorUnused mirrors the "unknown option keys are a construction-
// time error" contract the flag-driven path already gets from cobra itself).
func loadConfig(path string) (runConfig, error) {
	var cfg runConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("trajopt: reading config: %w", err)
	}
	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return cfg, fmt.Errorf("trajopt: parsing config: %w", err)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      &cfg,
	})
	if err != nil {
		return cfg, fmt.Errorf("trajopt: building decoder: %w", err)
	}
	if err := dec.Decode(generic); err != nil {
		return cfg, fmt.Errorf("trajopt: decoding config: %w", err)
	}
	return cfg, nil
}
