package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONB_ScanValue(t *testing.T) {
	var j JSONB
	require.NoError(t, j.Scan([]byte(`{"total_cells":23,"complexity_level":"medium"}`)))
	assert.EqualValues(t, 23, j["total_cells"])

	v, err := j.Value()
	require.NoError(t, err)
	assert.Contains(t, v, `"complexity_level":"medium"`)

	require.NoError(t, j.Scan(nil))
	assert.Nil(t, j)

	assert.Error(t, j.Scan(42))
}

func TestJSONB_Decode(t *testing.T) {
	j := JSONB{"total_cells": 12, "sample_multiplier": 1.15}
	var out struct {
		TotalCells       int     `json:"total_cells"`
		SampleMultiplier float64 `json:"sample_multiplier"`
	}
	require.NoError(t, j.Decode(&out))
	assert.Equal(t, 12, out.TotalCells)
	assert.InDelta(t, 1.15, out.SampleMultiplier, 1e-9)
}
