package model

import (
	"time"
)

// ExecutionStatus is the lifecycle state of a backtest execution
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "PENDING"
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusCompleted ExecutionStatus = "COMPLETED"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusCancelled ExecutionStatus = "CANCELLED"
)

var transitions = map[ExecutionStatus][]ExecutionStatus{
	StatusPending: {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning: {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransitionTo reports whether the state machine allows moving to next
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Execution kinds
const (
	KindBacktest     = "backtest"
	KindOptimization = "optimization"
)

// BacktestExecution tracks one run through its lifecycle
type BacktestExecution struct {
	ID          string          `json:"id" db:"id"`
	Kind        string          `json:"kind" db:"kind"`
	SweepID     string          `json:"sweep_id,omitempty" db:"sweep_id"`
	Config      BacktestConfig  `json:"config" db:"-"`
	Status      ExecutionStatus `json:"status" db:"status"`
	Error       string          `json:"error,omitempty" db:"error"`
	Failures    []SymbolFailure `json:"failures,omitempty" db:"-"`
	CreatedAt   time.Time       `json:"created_at" db:"-"`
	StartedAt   *time.Time      `json:"started_at,omitempty" db:"-"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"-"`
}

// Clone returns a copy that shares nothing mutable with the original
func (e BacktestExecution) Clone() BacktestExecution {
	out := e
	out.Config = e.Config.Clone()
	out.Failures = append([]SymbolFailure(nil), e.Failures...)
	if e.StartedAt != nil {
		t := *e.StartedAt
		out.StartedAt = &t
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// BacktestSummary represents the list view of an execution
type BacktestSummary struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Kind        string          `json:"kind"`
	Strategy    string          `json:"strategy"`
	Symbols     []string        `json:"symbols"`
	Status      ExecutionStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Summary builds the list view
func (e BacktestExecution) Summary() BacktestSummary {
	var completed *time.Time
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		completed = &t
	}
	return BacktestSummary{
		ID:          e.ID,
		Name:        e.Config.Name,
		Kind:        e.Kind,
		Strategy:    e.Config.Strategy.Name,
		Symbols:     append([]string(nil), e.Config.Symbols...),
		Status:      e.Status,
		CreatedAt:   e.CreatedAt,
		CompletedAt: completed,
	}
}

// ExecutionFilter narrows List results
type ExecutionFilter struct {
	Status ExecutionStatus `form:"status"`
	Kind   string          `form:"kind"`
	Limit  int             `form:"limit"`
}

// ExecutionEvent is published on every lifecycle transition
type ExecutionEvent struct {
	ExecutionID string          `json:"execution_id"`
	SweepID     string          `json:"sweep_id,omitempty"`
	Kind        string          `json:"kind"`
	Status      ExecutionStatus `json:"status"`
	Strategy    string          `json:"strategy"`
	Symbols     []string        `json:"symbols"`
	Error       string          `json:"error,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}
