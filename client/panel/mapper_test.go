package panel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nswSegment = SegmentQuota{
	Code:              "STATE_NSW",
	Name:              "NSW",
	Category:          "State",
	Quota:             320,
	PopulationPercent: 32,
}

func TestDefaultMapping(t *testing.T) {
	m := NewMapper()
	out, err := m.Map("", nswSegment)
	require.NoError(t, err)
	assert.Equal(t, ProviderQuota{"quota_id": "STATE_NSW", "name": "NSW", "limit": 320}, out)
	assert.Equal(t, 0, m.CacheSize())
}

func TestScriptMapping(t *testing.T) {
	script := `
import "strings"

func Map(segment map[string]interface{}) (map[string]interface{}, error) {
	code := segment["code"].(string)
	return map[string]interface{}{
		"qualification": "REGION_" + strings.TrimPrefix(code, "STATE_"),
		"limit":         segment["quota"],
	}, nil
}
`
	m := NewMapper()
	out, err := m.Map(script, nswSegment)
	require.NoError(t, err)
	assert.Equal(t, "REGION_NSW", out["qualification"])
	assert.Equal(t, 320, out["limit"])

	_, err = m.Map(script, nswSegment)
	require.NoError(t, err)
	assert.Equal(t, 1, m.CacheSize())
}

func TestScriptMapping_Errors(t *testing.T) {
	m := NewMapper()

	_, err := m.Map("func Map( {", nswSegment)
	assert.Error(t, err)

	err = m.Validate(`func Other() int { return 1 }`)
	assert.Error(t, err)

	err = m.Validate(`func Map(x int) int { return x }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "签名")

	empty := `func Map(segment map[string]interface{}) (map[string]interface{}, error) { return nil, nil }`
	_, err = m.Map(empty, nswSegment)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "为空")
}
