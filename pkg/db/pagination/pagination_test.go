package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	token := EncodeCursor(Cursor{ID: 42, CreatedAt: now})

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.NotNil(t, decoded)
	require.Equal(t, int64(42), decoded.ID)
	require.True(t, decoded.CreatedAt.Equal(now))
}

func TestDecodeCursorEmptyToken(t *testing.T) {
	decoded, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, decoded)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not-base64!!")
	require.Error(t, err)
}

func TestLimitBounds(t *testing.T) {
	require.Equal(t, 20, Pagination{}.Limit())
	require.Equal(t, 50, Pagination{PageSize: 50}.Limit())
	require.Equal(t, 250, Pagination{PageSize: 10_000}.Limit())
}
