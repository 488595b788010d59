package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockLevelStates(t *testing.T) {
	unset := UnsetStock()
	assert.True(t, unset.IsUnset())
	assert.False(t, unset.CanFulfil(1))
	assert.True(t, unset.CanFulfil(0))

	unlimited := UnlimitedStock()
	assert.True(t, unlimited.IsUnlimited())
	assert.True(t, unlimited.CanFulfil(1_000_000))

	finite := FiniteStock(3)
	n, ok := finite.Finite()
	require.True(t, ok)
	assert.Equal(t, 3, n)
	assert.True(t, finite.CanFulfil(3))
	assert.False(t, finite.CanFulfil(4))

	assert.Equal(t, 0, mustFinite(t, FiniteStock(-4)))
}

func TestStockLevelUnlimitedWinsOverCount(t *testing.T) {
	n := 12
	level := StockLevel{Count: &n, Unlimited: true}
	assert.True(t, level.IsUnlimited())
	assert.False(t, level.IsFinite())
	assert.True(t, level.Equal(UnlimitedStock()))
}

func TestStockLevelEqual(t *testing.T) {
	assert.True(t, FiniteStock(2).Equal(FiniteStock(2)))
	assert.False(t, FiniteStock(2).Equal(FiniteStock(3)))
	assert.False(t, FiniteStock(0).Equal(UnsetStock()))
	assert.True(t, UnsetStock().Equal(StockLevel{}))
	assert.False(t, UnlimitedStock().Equal(FiniteStock(99999)))
}

func TestStockLevelJSON(t *testing.T) {
	tests := []struct {
		level StockLevel
		raw   string
	}{
		{level: FiniteStock(7), raw: `7`},
		{level: FiniteStock(0), raw: `0`},
		{level: UnlimitedStock(), raw: `"unlimited"`},
		{level: UnsetStock(), raw: `null`},
	}

	for _, tt := range tests {
		encoded, err := json.Marshal(tt.level)
		require.NoError(t, err)
		assert.JSONEq(t, tt.raw, string(encoded))

		var decoded StockLevel
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &decoded))
		assert.True(t, decoded.Equal(tt.level), "decoded %s want %s", decoded, tt.level)
	}
}

func TestStockLevelJSONRejectsGarbage(t *testing.T) {
	var level StockLevel
	assert.Error(t, json.Unmarshal([]byte(`"infinite"`), &level))
	assert.Error(t, json.Unmarshal([]byte(`-1`), &level))
	assert.Error(t, json.Unmarshal([]byte(`1.5`), &level))
}

func TestStockLevelInsideStructOmitsNothing(t *testing.T) {
	payload := struct {
		Stock StockLevel `json:"stock"`
	}{Stock: UnsetStock()}
	encoded, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"stock":null}`, string(encoded))
}

func mustFinite(t *testing.T, s StockLevel) int {
	t.Helper()
	n, ok := s.Finite()
	require.True(t, ok, "expected finite level, got %s", s)
	return n
}
