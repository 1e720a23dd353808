package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEventSetsTypeAndUnit(t *testing.T) {
	e := NewEvent(UnitStarted, "login")
	assert.Equal(t, UnitStarted, e.Type)
	assert.Equal(t, "login", e.Unit)
	assert.False(t, e.Time.IsZero())
}

func TestWithQueueIndexAndPayload(t *testing.T) {
	e := NewEvent(UnitDispatched, "login").WithQueueIndex(3).WithPayload(map[string]any{"args": []string{"-i", "smoke"}})
	assert.Equal(t, 3, *e.QueueIndex)
	assert.NotNil(t, e.Payload)
}

func TestWithErrorSetsMessage(t *testing.T) {
	e := NewEvent(UnitFailed, "login").WithError(errors.New("exit code 1"))
	assert.Equal(t, "exit code 1", e.Error)
}

func TestWithErrorNilLeavesErrorEmpty(t *testing.T) {
	e := NewEvent(UnitCompleted, "login").WithError(nil)
	assert.Empty(t, e.Error)
}

func TestIsFailure(t *testing.T) {
	assert.True(t, NewEvent(UnitFailed, "login").IsFailure())
	assert.True(t, NewEvent(UnitTimedOut, "login").IsFailure())
	assert.True(t, NewEvent(MergeFailed, "").IsFailure())
	assert.False(t, NewEvent(UnitCompleted, "login").IsFailure())
}

func TestEventString(t *testing.T) {
	e := NewEvent(UnitStarted, "login").WithQueueIndex(2)
	s := e.String()
	assert.Contains(t, s, "unit.started")
	assert.Contains(t, s, "login")
	assert.Contains(t, s, "queue_index=2")
}
