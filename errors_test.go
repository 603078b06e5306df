package stepflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrorDetection(t *testing.T) {
	runtimeErr := NewRuntimeError(errors.New("planner exploded"))
	scenarioErr := NewScenarioFailureError("2 of 5 scenarios failed")
	configErr := NewConfigurationError(errors.New("bad flag"))
	discoveryErr := NewDiscoveryError(errors.New("manifest missing"))

	assert.True(t, IsRuntimeError(runtimeErr))
	assert.True(t, IsScenarioFailureError(scenarioErr))
	assert.True(t, IsConfigurationError(configErr))
	assert.True(t, IsDiscoveryError(discoveryErr))

	// Each detector only matches its own type.
	assert.False(t, IsRuntimeError(scenarioErr))
	assert.False(t, IsScenarioFailureError(runtimeErr))
	assert.False(t, IsConfigurationError(discoveryErr))
	assert.False(t, IsDiscoveryError(configErr))

	assert.False(t, IsRuntimeError(nil))
}

func TestTypedErrorsSurviveWrapping(t *testing.T) {
	inner := NewDiscoveryError(errors.New("manifest missing"))
	wrapped := fmt.Errorf("run failed: %w", inner)

	assert.True(t, IsDiscoveryError(wrapped))
	assert.ErrorContains(t, wrapped, "discovery error")
}

func TestTypedErrorsUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	assert.ErrorIs(t, NewRuntimeError(cause), cause)
	assert.ErrorIs(t, NewConfigurationError(cause), cause)
	assert.ErrorIs(t, NewDiscoveryError(cause), cause)
}
