package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrResultNotReady    = errors.New("result not ready")
	ErrResultReleased    = errors.New("result no longer retained")
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTooManyCombos     = errors.New("too many parameter combinations")
)

// FieldError is one rejected configuration field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ConfigValidationError is returned before an execution is ever started
type ConfigValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ConfigValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid backtest config: " + strings.Join(parts, "; ")
}

// Add appends a field error
func (e *ConfigValidationError) Add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// OrNil returns nil when nothing was recorded
func (e *ConfigValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// InsufficientDataError means a symbol's bar stream cannot support a simulation
type InsufficientDataError struct {
	Symbol    string
	Required  int
	Available int
	Reason    string
}

func (e *InsufficientDataError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("insufficient data for %s: %s", e.Symbol, e.Reason)
	}
	return fmt.Sprintf("insufficient data for %s: need %d bars, have %d", e.Symbol, e.Required, e.Available)
}

// SimulationFault is an accounting invariant violation. It indicates a defect, not bad input.
type SimulationFault struct {
	Symbol    string
	Timestamp time.Time
	Reason    string
}

func (e *SimulationFault) Error() string {
	return fmt.Sprintf("simulation fault for %s at %s: %s", e.Symbol, e.Timestamp.Format(time.RFC3339), e.Reason)
}

// Failure kinds recorded per symbol
const (
	FailureInsufficientData = "insufficient_data"
	FailureSimulationFault  = "simulation_fault"
	FailureDataSource       = "data_source"
	FailureCancelled        = "cancelled"
	FailureInternal         = "internal"
)

// SymbolFailure describes why one unit of work did not produce a result
type SymbolFailure struct {
	Symbol    string     `json:"symbol"`
	Kind      string     `json:"kind"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ClassifyFailure maps a unit-of-work error to a SymbolFailure
func ClassifyFailure(symbol string, err error) SymbolFailure {
	f := SymbolFailure{Symbol: symbol, Kind: FailureInternal, Message: err.Error()}
	var ide *InsufficientDataError
	var sf *SimulationFault
	switch {
	case errors.As(err, &ide):
		f.Kind = FailureInsufficientData
	case errors.As(err, &sf):
		f.Kind = FailureSimulationFault
		ts := sf.Timestamp
		f.Timestamp = &ts
	case errors.Is(err, ErrDataSource):
		f.Kind = FailureDataSource
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		f.Kind = FailureCancelled
	}
	return f
}

// ErrDataSource wraps failures from a bar source
var ErrDataSource = errors.New("data source error")
