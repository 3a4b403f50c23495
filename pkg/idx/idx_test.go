package idx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/chatgate/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewProducesValidULIDs(t *testing.T) {
	t.Parallel()

	id := idx.New()
	require.False(t, id.IsZero())

	parsed, err := idx.Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestNewIsMonotonicWithinSameMillisecond(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a := idx.NewAt(at)
	b := idx.NewAt(at)
	require.Less(t, a.String(), b.String())
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"", "   ", "not-a-ulid", "0000"} {
		_, err := idx.Parse(bad)
		require.ErrorIs(t, err, idx.ErrInvalid)
	}
}

func TestTimeRoundTrips(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	id := idx.NewAt(at)
	require.Equal(t, at.Truncate(time.Millisecond), id.Time())
}
