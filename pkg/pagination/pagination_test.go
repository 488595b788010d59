package pagination

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	for in, want := range map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, 100: 100, 101: MaxLimit} {
		assert.Equal(t, want, NormalizeLimit(in), "NormalizeLimit(%d)", in)
	}
	assert.Equal(t, 11, LimitWithBuffer(10))
}

func TestPageParams(t *testing.T) {
	assert.Equal(t, 40, PageParams{Page: 3, Limit: 20}.Offset())
	assert.Equal(t, PageParams{Page: 1, Limit: DefaultLimit}, PageParams{}.Normalize())
	assert.Equal(t, 0, PageParams{Page: 0, Limit: 500}.Offset())
}

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123, time.FixedZone("X", 3600)), ID: uuid.New()}
	encoded := EncodeCursor(c)
	assert.NotContains(t, encoded, "=")

	decoded, err := ParseCursor(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.CreatedAt.Equal(c.CreatedAt))
	assert.Equal(t, c.ID, decoded.ID)

	blank, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, blank)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		"not-base64!",
		EncodeCursor(Cursor{}),
		"bm90LWpzb24", // "not-json"
	} {
		_, err := ParseCursor(raw)
		assert.True(t, errors.Is(err, errMalformedCursor), "ParseCursor(%q) = %v", raw, err)
	}
}

func TestTrim(t *testing.T) {
	rows, more := Trim([]int{1, 2, 3}, 2)
	assert.Equal(t, []int{1, 2}, rows)
	assert.True(t, more)

	rows, more = Trim([]int{1, 2}, 2)
	assert.Equal(t, []int{1, 2}, rows)
	assert.False(t, more)
}
