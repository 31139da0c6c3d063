package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesEachAttempt(t *testing.T) {
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
	assert.Equal(t, 8*time.Second, Backoff(3))
	assert.Equal(t, 16*time.Second, Backoff(4))
}

func TestBackoffClampsBelowOne(t *testing.T) {
	assert.Equal(t, Backoff(1), Backoff(0))
	assert.Equal(t, Backoff(1), Backoff(-5))
}

func TestRepeatableJobIDIsDeterministic(t *testing.T) {
	a := RepeatableJobID("org-1", "conn-1")
	b := RepeatableJobID("org-1", "conn-1")
	assert.Equal(t, a, b)
}

func TestRepeatableJobIDDiffersByInput(t *testing.T) {
	a := RepeatableJobID("org-1", "conn-1")
	b := RepeatableJobID("org-1", "conn-2")
	c := RepeatableJobID("org-2", "conn-1")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}
