package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func passing(name string, critical bool) Checker {
	return NewChecker(name, critical, func(context.Context) error { return nil })
}

func failing(name string, critical bool) Checker {
	return NewChecker(name, critical, func(context.Context) error {
		return errors.New(name + " unreachable")
	})
}

func TestCheckAllHealthy(t *testing.T) {
	m := NewManager(time.Second, zaptest.NewLogger(t))
	m.Register(passing("elasticsearch", true))
	m.Register(passing("nlp", false))

	overall := m.Check(context.Background())
	assert.Equal(t, StatusHealthy, overall.Status)
	require.Len(t, overall.Components, 2)
	assert.Equal(t, StatusHealthy, overall.Components["elasticsearch"].Status)
}

func TestCheckCriticalFailureIsUnhealthy(t *testing.T) {
	m := NewManager(time.Second, zaptest.NewLogger(t))
	m.Register(passing("nlp", false))
	m.Register(failing("qdrant", true))

	overall := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, overall.Status)
	assert.Equal(t, "qdrant unreachable", overall.Components["qdrant"].Error)
}

func TestCheckNonCriticalFailureIsDegraded(t *testing.T) {
	m := NewManager(time.Second, zaptest.NewLogger(t))
	m.Register(passing("elasticsearch", true))
	m.Register(failing("embedder", false))

	overall := m.Check(context.Background())
	assert.Equal(t, StatusDegraded, overall.Status)
}

func TestCheckCriticalDominatesDegraded(t *testing.T) {
	m := NewManager(time.Second, zaptest.NewLogger(t))
	m.Register(failing("embedder", false))
	m.Register(failing("ollama", true))

	overall := m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, overall.Status)
}

func TestCheckNoCheckers(t *testing.T) {
	m := NewManager(time.Second, zaptest.NewLogger(t))
	overall := m.Check(context.Background())
	assert.Equal(t, StatusHealthy, overall.Status)
	assert.Empty(t, overall.Components)
}

func TestCheckerRecordsDuration(t *testing.T) {
	c := NewChecker("slow", false, func(context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	result := c.Check(context.Background())
	assert.GreaterOrEqual(t, result.Duration, 5*time.Millisecond)
	assert.Equal(t, StatusHealthy, result.Status)
}
