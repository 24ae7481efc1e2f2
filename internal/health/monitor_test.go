package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ healthy bool }

func (f *fakePinger) IsHealthy() bool { return f.healthy }

func TestNewMonitor_Defaults(t *testing.T) {
	c := NewChecker()
	target := &fakePinger{healthy: true}

	m := NewMonitor(nil, c, target)
	require.NotNil(t, m)
	assert.Equal(t, 30*time.Second, m.config.CheckInterval)
	assert.Equal(t, int32(3), m.config.FailureThreshold)
}

func TestMonitor_CheckHealth_HealthyTransition(t *testing.T) {
	c := NewChecker()
	target := &fakePinger{healthy: false}

	m := NewMonitor(&MonitorConfig{CheckInterval: time.Second, FailureThreshold: 3}, c, target)

	assert.True(t, c.IsHealthy(), "stays healthy until the threshold is reached")

	m.checkHealth()
	assert.True(t, c.IsHealthy(), "1 failure, threshold is 3")

	m.checkHealth()
	m.checkHealth()
	assert.False(t, c.IsHealthy(), "3 consecutive failures trips the breaker")

	target.healthy = true
	m.checkHealth()
	assert.True(t, c.IsHealthy(), "recovers once the target is healthy again")
}

func TestMonitor_CheckHealth_CircuitBreakerStats(t *testing.T) {
	c := NewChecker()
	target := &fakePinger{healthy: false}

	m := NewMonitor(&MonitorConfig{CheckInterval: time.Second, FailureThreshold: 2}, c, target)

	m.checkHealth()
	m.checkHealth()

	stats := m.Stats()
	assert.False(t, stats.IsHealthy)
	assert.Equal(t, int32(2), stats.ConsecutiveFailures)
}
