package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopwatch(t *testing.T) {
	s := NewStopwatch(time.Hour)
	stopped, _ := s.Stopped()
	assert.True(t, stopped, "a stopwatch that never started counts as stopped")

	s.Start()
	stopped, left := s.Stopped()
	assert.False(t, stopped)
	assert.Greater(t, left, 59*time.Minute)

	s.Stop()
	stopped, _ = s.Stopped()
	assert.True(t, stopped)
}

func TestTimedExecutor(t *testing.T) {
	runs := 0
	te := NewTimedExecutor("test", time.Hour, func() { runs++ })

	assert.True(t, te.Execute(), "first call should run the task")
	assert.False(t, te.Execute(), "second call inside the timeout should not run the task")
	assert.Equal(t, 1, runs)
}

func TestTimedExecutorShortTimeout(t *testing.T) {
	runs := 0
	te := NewTimedExecutor("test", 10*time.Millisecond, func() { runs++ })

	te.Execute()
	time.Sleep(20 * time.Millisecond)
	te.Execute()
	assert.Equal(t, 2, runs)
}
