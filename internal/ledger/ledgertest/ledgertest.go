// Package ledgertest holds the behavior every ledger.Repository must show,
// run by each backend's tests.
package ledgertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvsift/internal/ledger"
)

// RunContract exercises repo. The ledger table must be empty on entry.
func RunContract(t *testing.T, repo ledger.Repository) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx), "EnsureSchema is idempotent")

	got, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var want []ledger.Entry
	for i := range 3 {
		started := base.Add(time.Duration(i) * time.Minute)
		e := ledger.Entry{
			ID:          ulid.MustNew(ulid.Timestamp(started), ulid.DefaultEntropy()).String(),
			Input:       fmt.Sprintf("in-%d.csv", i),
			Output:      fmt.Sprintf("out-%d.csv", i),
			Processed:   int64(10 * i),
			Skipped:     int64(i),
			Status:      "committed",
			Fingerprint: fmt.Sprintf("%016x/%d", i, 10*i),
			StartedAt:   started,
			Duration:    time.Duration(i+1) * 1500 * time.Millisecond,
		}
		if i == 0 {
			e.Status, e.Error = "deleted_error", "open in-0.csv: no such file or directory"
		}
		require.NoError(t, repo.Record(ctx, e))
		want = append(want, e)
	}

	got, err = repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[2], got[0], "newest first")
	assert.Equal(t, want[1], got[1])

	got, err = repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, want[0], got[2])

	got, err = repo.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Error(t, repo.Record(ctx, want[0]), "duplicate id")
}
