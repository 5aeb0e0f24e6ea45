package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestMetrics_UnmarshalPreservesOrder(t *testing.T) {
	t.Parallel()

	var m Metrics
	err := json.Unmarshal([]byte(`{"S_knee_bend": 120.5, "R_hip_angle": 88.0, "X_unused": 1, "F_release_angle": 61}`), &m)
	require.NoError(t, err)

	assert.Equal(t, []string{"S_knee_bend", "R_hip_angle", "X_unused", "F_release_angle"}, m.Keys())
	v, ok := m.Float("S_knee_bend")
	require.True(t, ok)
	assert.InDelta(t, 120.5, v, 0.0001)
}

func TestMetrics_UnmarshalNonNumericPassThrough(t *testing.T) {
	t.Parallel()

	var m Metrics
	require.NoError(t, json.Unmarshal([]byte(`{"S_grade": "good", "R_flag": true, "F_none": null}`), &m))

	v, ok := m.Get("S_grade")
	require.True(t, ok)
	assert.Equal(t, "good", v)

	v, ok = m.Get("R_flag")
	require.True(t, ok)
	assert.Equal(t, true, v)

	v, ok = m.Get("F_none")
	require.True(t, ok)
	assert.Nil(t, v)

	_, ok = m.Float("S_grade")
	assert.False(t, ok)
}

func TestMetrics_UnmarshalDuplicateKeepsFirstPosition(t *testing.T) {
	t.Parallel()

	var m Metrics
	require.NoError(t, json.Unmarshal([]byte(`{"a": 1, "b": 2, "a": 3}`), &m))

	assert.Equal(t, []string{"a", "b"}, m.Keys())
	v, _ := m.Float("a")
	assert.InDelta(t, 3.0, v, 0.0001)
}

func TestMetrics_UnmarshalNullAndEmpty(t *testing.T) {
	t.Parallel()

	var m Metrics
	require.NoError(t, json.Unmarshal([]byte(`null`), &m))
	assert.Nil(t, m)

	require.NoError(t, json.Unmarshal([]byte(`{}`), &m))
	assert.Empty(t, m)
}

func TestMetrics_UnmarshalRejectsNonObject(t *testing.T) {
	t.Parallel()

	var m Metrics
	err := json.Unmarshal([]byte(`[1,2,3]`), &m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics must be an object")
}

func TestMetrics_MarshalJSONOrder(t *testing.T) {
	t.Parallel()

	m := Metrics{{Key: "z", Value: 1.5}, {Key: "a", Value: "x"}}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1.5,"a":"x"}`, string(data))

	data, err = json.Marshal(Metrics(nil))
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestMetrics_MarshalYAMLOrder(t *testing.T) {
	t.Parallel()

	m := Metrics{{Key: "R_second", Value: 2.0}, {Key: "S_first", Value: 1.0}}
	data, err := yaml.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, "R_second: 2\nS_first: 1\n", string(data))
}
