package main

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yourorg/backtest-service/internal/model"
)

// decodeJob strictly decodes a YAML job file into out
func decodeJob(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading job file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parsing job file %s: %w", path, err)
	}
	return nil
}

func loadBacktestJob(path string) (model.BacktestConfig, error) {
	var cfg model.BacktestConfig
	err := decodeJob(path, &cfg)
	return cfg, err
}

func loadOptimizationJob(path string) (model.OptimizationRequest, error) {
	var req model.OptimizationRequest
	err := decodeJob(path, &req)
	return req, err
}
