package statedict

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessors(t *testing.T) {
	t.Run("float64 accepts native and json numbers", func(t *testing.T) {
		state := map[string]any{"a": 1.5, "b": 2, "c": int64(3)}
		for key, want := range map[string]float64{"a": 1.5, "b": 2, "c": 3} {
			got, err := Float64(state, key)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("missing key errors", func(t *testing.T) {
		_, err := Float64(map[string]any{}, "missing")
		assert.Error(t, err)
		_, err = Int(map[string]any{}, "missing")
		assert.Error(t, err)
		_, err = Float64Slice(map[string]any{}, "missing")
		assert.Error(t, err)
	})

	t.Run("wrong type errors", func(t *testing.T) {
		_, err := Float64(map[string]any{"a": "nope"}, "a")
		assert.Error(t, err)
	})

	t.Run("int tolerates json decoded floats", func(t *testing.T) {
		var state map[string]any
		require.NoError(t, json.Unmarshal([]byte(`{"count": 7}`), &state))
		got, err := Int(state, "count")
		require.NoError(t, err)
		assert.Equal(t, 7, got)
	})

	t.Run("float64 slice tolerates json decoded arrays", func(t *testing.T) {
		var state map[string]any
		require.NoError(t, json.Unmarshal([]byte(`{"values": [1, 2.5, 3]}`), &state))
		got, err := Float64Slice(state, "values")
		require.NoError(t, err)
		assert.Equal(t, []float64{1, 2.5, 3}, got)
	})
}
