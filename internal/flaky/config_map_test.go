package flaky

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMap_JSONKeepsOrder(t *testing.T) {
	var config ConfigMap
	require.NoError(t, json.Unmarshal([]byte(`{"zeta":1,"alpha":"x","retries":{"max":3}}`), &config))
	assert.Equal(t, []string{"zeta", "alpha", "retries"}, config.Keys())

	config.Set("beta", true)
	config.Set("zeta", 2)
	assert.True(t, config.Delete("alpha"))
	assert.False(t, config.Delete("alpha"))

	data, err := json.Marshal(&config)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":2,"retries":{"max":3},"beta":true}`, string(data))
}

func TestConfigMap_NilAndZero(t *testing.T) {
	var nilMap *ConfigMap
	_, ok := nilMap.Get("x")
	assert.False(t, ok)
	assert.Equal(t, 0, nilMap.Len())
	assert.Equal(t, 0, nilMap.Clone().Len())

	data, err := json.Marshal(TestIdentity{ID: "t"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"config":null`)
}

func TestConfigMap_CloneIsIndependent(t *testing.T) {
	original := NewConfigMap()
	original.Set("owner", "team-a")

	clone := original.Clone()
	clone.Set("owner", "team-b")
	clone.Set("extra", 1)

	owner, _ := original.Get("owner")
	assert.Equal(t, "team-a", owner)
	assert.Equal(t, 1, original.Len())
}
