package phase

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shotsense-cli/internal/model"
)

func decode(t *testing.T, raw string) model.Metrics {
	t.Helper()
	var m model.Metrics
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestPartition_Scenario(t *testing.T) {
	t.Parallel()

	v := Partition(decode(t, `{"S_knee_bend": 120.5, "R_hip_angle": 88.0, "X_unused": 1}`))

	assert.Equal(t, []Entry{{Key: "knee_bend", Source: "S_knee_bend", Value: 120.5}}, v.Setup)
	assert.Equal(t, []Entry{{Key: "hip_angle", Source: "R_hip_angle", Value: 88.0}}, v.Release)
	assert.Empty(t, v.FollowThrough)
	assert.NotNil(t, v.FollowThrough)
	assert.Equal(t, 2, v.Len())
}

func TestPartition_EmptyAndNil(t *testing.T) {
	t.Parallel()

	for _, m := range []model.Metrics{nil, {}} {
		v := Partition(m)
		for _, p := range All {
			assert.NotNil(t, v.Group(p))
			assert.Empty(t, v.Group(p))
		}
	}
}

func TestPartition_PreservesOrderWithinPhase(t *testing.T) {
	t.Parallel()

	v := Partition(decode(t, `{
		"S_avg_knee_bend": 1, "R_avg_hip_angle": 2, "S_max_knee_bend": 3,
		"F_release_angle": 4, "S_avg_body_lean": 5, "F_hip_angle": 6
	}`))

	keys := func(es []Entry) []string {
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.Key
		}
		return out
	}
	assert.Equal(t, []string{"avg_knee_bend", "max_knee_bend", "avg_body_lean"}, keys(v.Setup))
	assert.Equal(t, []string{"avg_hip_angle"}, keys(v.Release))
	assert.Equal(t, []string{"release_angle", "hip_angle"}, keys(v.FollowThrough))
}

func TestPartition_LongPrefixes(t *testing.T) {
	t.Parallel()

	v := Partition(decode(t, `{"Setup_knee": 1, "Release_elbow": 2, "Follow-through_arc": 3}`))

	require.Len(t, v.Setup, 1)
	assert.Equal(t, "knee", v.Setup[0].Key)
	require.Len(t, v.Release, 1)
	assert.Equal(t, "elbow", v.Release[0].Key)
	require.Len(t, v.FollowThrough, 1)
	assert.Equal(t, "arc", v.FollowThrough[0].Key)
}

func TestPartition_UnrecognizedAndBareKeys(t *testing.T) {
	t.Parallel()

	m := decode(t, `{"S_": 1, "S": 2, "s_lower": 3, "SX_other": 4, "": 5}`)
	v := Partition(m)

	assert.Zero(t, v.Len())
	assert.Len(t, m, 5, "raw metrics keep unrecognized keys")
}

func TestPartition_NonNumericPassThrough(t *testing.T) {
	t.Parallel()

	v := Partition(decode(t, `{"S_grade": "good", "R_detail": {"frames": 3}}`))

	require.Len(t, v.Setup, 1)
	assert.Equal(t, "good", v.Setup[0].Value)
	require.Len(t, v.Release, 1)
	assert.IsType(t, map[string]any{}, v.Release[0].Value)
}

func TestNormalizer_FirstMatchWins(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(WithPrefixes([]Prefix{
		{Tag: "R", Phase: Release},
		{Tag: "R", Phase: Setup},
	}))
	v := n.Normalize(model.Metrics{{Key: "R_x", Value: 1.0}})

	assert.Len(t, v.Release, 1)
	assert.Empty(t, v.Setup)
}

func TestNormalizer_CustomSeparator(t *testing.T) {
	t.Parallel()

	n := NewNormalizer(WithSeparator("."))
	v := n.Normalize(model.Metrics{{Key: "S.knee", Value: 1.0}, {Key: "S_knee", Value: 2.0}})

	require.Len(t, v.Setup, 1)
	assert.Equal(t, "knee", v.Setup[0].Key)
	assert.Equal(t, "S.knee", v.Setup[0].Source)
}

// Every prefixed key lands in exactly one phase; nothing else does.
func TestPartition_PartitionProperty(t *testing.T) {
	t.Parallel()

	tags := []string{"S", "R", "F", "X", "Setup", "Release", "Follow-through", "Q"}
	rng := rand.New(rand.NewPCG(1, 2))

	for round := range 200 {
		var m model.Metrics
		want := map[string]int{}
		n := rng.IntN(12)
		for i := range n {
			tag := tags[rng.IntN(len(tags))]
			key := fmt.Sprintf("%s_m%d_%d", tag, round, i)
			m = append(m, model.Metric{Key: key, Value: float64(i)})
			switch tag {
			case "X", "Q":
			default:
				want[key] = i
			}
		}

		v := Partition(m)
		seen := map[string]int{}
		for _, p := range All {
			last := -1
			for _, e := range v.Group(p) {
				seen[e.Source]++
				idx := want[e.Source]
				assert.Greater(t, idx, last, "order within phase must follow input order")
				last = idx
			}
		}
		assert.Len(t, seen, len(want))
		for key, count := range seen {
			_, expected := want[key]
			assert.True(t, expected, "unexpected key %s", key)
			assert.Equal(t, 1, count, "key %s duplicated", key)
		}
	}
}
