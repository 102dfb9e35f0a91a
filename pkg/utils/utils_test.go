package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.3))
	assert.Equal(t, 0.42, Clamp01(0.42))
	assert.Equal(t, 1.0, Clamp01(1.7))
}

func TestMeanAndStdDev(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)

	assert.Equal(t, 0.0, StdDev([]float64{5}))
	// Population std dev of {2, 4, 4, 4, 5, 5, 7, 9} is exactly 2.
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}
