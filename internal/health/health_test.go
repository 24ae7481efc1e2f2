package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecker_NewStartsHealthy(t *testing.T) {
	c := NewChecker()
	assert.True(t, c.IsHealthy())
}

func TestChecker_SetHealthy(t *testing.T) {
	c := NewChecker()

	c.SetHealthy(false)
	assert.False(t, c.IsHealthy())

	c.SetHealthy(true)
	assert.True(t, c.IsHealthy())
}

func TestChecker_NilSafety(t *testing.T) {
	var c *Checker
	assert.True(t, c.IsHealthy(), "nil receiver defaults to healthy")
	c.SetHealthy(false) // must not panic
}
