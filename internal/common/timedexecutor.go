package common

import (
	"sync"
	"time"
)

// Give the timed executor a task and a timeout.
// Call the execute function from time to time.
// If the function gets called when the timeout has been reached,
// the provided task will execute. If not, the call will do nothing.
// The first call always executes the task
type TimedExecutor struct {
	mu        sync.Mutex
	name      string
	stopwatch Stopwatch
	task      func()
}

// Create a timed executor provided a timeout and a task
func NewTimedExecutor(name string, timeout time.Duration, task func()) *TimedExecutor {
	return &TimedExecutor{name: name, stopwatch: NewStopwatch(timeout), task: task}
}

func (te *TimedExecutor) Name() string {
	return te.name
}

// Execute the task if the timeout has been reached, else do nothing.
// Reports if the task ran
func (te *TimedExecutor) Execute() bool {
	te.mu.Lock()
	stopped, _ := te.stopwatch.Stopped()
	if stopped {
		te.stopwatch.Start()
	}
	te.mu.Unlock()

	if !stopped {
		return false
	}
	te.task()
	return true
}
