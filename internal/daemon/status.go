package daemon

import (
	"sync"
	"time"
)

// State represents what the service is doing
type State string

const (
	// StateIdle indicates no operation is running
	StateIdle State = "idle"

	// StateRunning indicates an operation holds the gate
	StateRunning State = "running"

	// StateError indicates the last operation failed
	StateError State = "error"
)

// Status is the JSON body of GET /status
type Status struct {
	State State `json:"state"`

	// Model is the selected platform/model
	Model string `json:"model,omitempty"`

	// Current describes the in-flight operation
	Current *Progress `json:"current,omitempty"`

	// LastResult summarizes the last finished operation
	LastResult *Summary `json:"last_result,omitempty"`

	// ErrorMessage contains the error from the last failed operation
	ErrorMessage string `json:"error_message,omitempty"`

	UptimeSeconds int64 `json:"uptime_seconds"`
}

// Progress describes an in-flight operation
type Progress struct {
	Operation string    `json:"operation"`
	Items     int       `json:"items"`
	StartTime time.Time `json:"start_time"`
}

// Summary describes a finished operation
type Summary struct {
	Operation    string        `json:"operation"`
	StartTime    time.Time     `json:"start_time"`
	Duration     time.Duration `json:"duration"`
	Items        int           `json:"items"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
}

// StatusTracker tracks the service status in a thread-safe manner
type StatusTracker struct {
	mu         sync.RWMutex
	state      State
	model      string
	startTime  time.Time
	errMsg     string
	current    *Progress
	lastResult *Summary
}

// NewStatusTracker creates a new status tracker
func NewStatusTracker(model string) *StatusTracker {
	return &StatusTracker{
		state:     StateIdle,
		model:     model,
		startTime: time.Now(),
	}
}

// GetStatus returns a snapshot of the current status
func (st *StatusTracker) GetStatus() Status {
	st.mu.RLock()
	defer st.mu.RUnlock()

	status := Status{
		State:         st.state,
		Model:         st.model,
		ErrorMessage:  st.errMsg,
		UptimeSeconds: int64(time.Since(st.startTime).Seconds()),
	}
	if st.current != nil {
		cur := *st.current
		status.Current = &cur
	}
	if st.lastResult != nil {
		last := *st.lastResult
		status.LastResult = &last
	}
	return status
}

// Started records the start of an operation over items inputs
func (st *StatusTracker) Started(operation string, items int) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.state = StateRunning
	st.current = &Progress{
		Operation: operation,
		Items:     items,
		StartTime: time.Now(),
	}
}

// Finished records the end of an operation. A non-nil err leaves the tracker in the error state.
func (st *StatusTracker) Finished(operation string, items, failed int, duration time.Duration, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var start time.Time
	if st.current != nil {
		start = st.current.StartTime
	}

	st.current = nil
	st.lastResult = &Summary{
		Operation:    operation,
		StartTime:    start,
		Duration:     duration,
		Items:        items,
		SuccessCount: items - failed,
		FailureCount: failed,
	}
	st.state = StateIdle
	st.errMsg = ""

	if err != nil {
		st.state = StateError
		st.errMsg = err.Error()
	}
}
