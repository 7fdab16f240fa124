package temp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroValueIsUnknown(t *testing.T) {
	var r Reading
	assert.False(t, r.IsKnown())
	assert.Equal(t, Unknown, r)

	_, ok := r.Get()
	assert.False(t, ok)
}

func TestKnown(t *testing.T) {
	r := Known(72.5)
	v, ok := r.Get()
	require.True(t, ok)
	assert.Equal(t, 72.5, v)
	assert.Equal(t, "72.50", r.String())
}

func TestKnownZeroIsNotUnknown(t *testing.T) {
	assert.True(t, Known(0).IsKnown())
	assert.NotEqual(t, Unknown, Known(0))
}

func TestMap(t *testing.T) {
	minus3 := func(f float64) float64 { return f - 3 }

	v, ok := Known(100).Map(minus3).Get()
	require.True(t, ok)
	assert.Equal(t, 97.0, v)

	assert.False(t, Unknown.Map(minus3).IsKnown())
}

func TestJSON(t *testing.T) {
	type body struct {
		Cur Reading `json:"cur"`
	}

	data, err := json.Marshal(body{Cur: Unknown})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cur":null}`, string(data))

	data, err = json.Marshal(body{Cur: Known(98.6)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cur":98.6}`, string(data))

	var b body
	require.NoError(t, json.Unmarshal([]byte(`{"cur":101.25}`), &b))
	v, ok := b.Cur.Get()
	require.True(t, ok)
	assert.Equal(t, 101.25, v)

	require.NoError(t, json.Unmarshal([]byte(`{"cur":null}`), &b))
	assert.False(t, b.Cur.IsKnown())
}
