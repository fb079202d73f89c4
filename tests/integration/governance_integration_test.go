package integration

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brandworks/social-automation/publication-governor/internal/gate"
	"github.com/brandworks/social-automation/publication-governor/internal/safety"
	"github.com/brandworks/social-automation/publication-governor/internal/store"
	"github.com/brandworks/social-automation/publication-governor/tests/helpers"
)

// TestPauseGatePersistence verifies that pause state written through the
// gate survives a fresh gate instance reading from the same database.
func TestPauseGatePersistence(t *testing.T) {
	requireIntegrationEnv(t)

	testDB := helpers.NewTestDatabase(t)
	defer testDB.Close()
	defer testDB.CleanupTables(t)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ctx := context.Background()
	flagStore := store.NewPostgresFlagStore(testDB.Pool)

	g1 := gate.New(flagStore, logger, gate.WithCacheTTL(time.Millisecond))
	require.NoError(t, g1.Pause(ctx, "TwitterAgent", "integration incident", "op-1"))

	// A second gate over the same store sees the pause.
	g2 := gate.New(flagStore, logger, gate.WithCacheTTL(time.Millisecond))
	err := g2.RequireActive(ctx, "TwitterAgent")
	require.Error(t, err)
	var pausedErr *gate.PausedError
	require.ErrorAs(t, err, &pausedErr)
	assert.Equal(t, "integration incident", pausedErr.Reason)

	require.NoError(t, g1.Resume(ctx, "TwitterAgent", "op-1"))
	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, g2.RequireActive(ctx, "TwitterAgent"))
}

// TestSafetyAuditPersistence verifies audit entries round-trip through
// Postgres with the capacity prune applied.
func TestSafetyAuditPersistence(t *testing.T) {
	requireIntegrationEnv(t)

	testDB := helpers.NewTestDatabase(t)
	defer testDB.Close()
	defer testDB.CleanupTables(t)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ctx := context.Background()
	audit := store.NewPostgresAuditStore(testDB.Pool, 5)
	filter := safety.NewFilter(safety.DefaultBlacklist(), safety.Config{}, nil, audit, logger)

	for i := 0; i < 8; i++ {
		filter.CheckSafety(ctx, "this is shit", "persist-campaign")
	}

	entries, err := audit.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5, "audit trail prunes to capacity")
	for _, e := range entries {
		assert.Equal(t, safety.ActionRejected, e.Action)
		assert.Contains(t, e.FlaggedTerms, "shit")
	}

	require.NoError(t, audit.Clear(ctx))
	assert.Equal(t, 0, testDB.GetAuditCount(t))
}

// TestCampaignBlacklistPersistence verifies campaign terms written by
// one process are loadable by the next.
func TestCampaignBlacklistPersistence(t *testing.T) {
	requireIntegrationEnv(t)

	testDB := helpers.NewTestDatabase(t)
	defer testDB.Close()
	defer testDB.CleanupTables(t)

	ctx := context.Background()
	blacklist := store.NewBlacklistStore(testDB.Pool)

	entries := []safety.BlacklistEntry{
		{Term: "rivalco", Category: safety.CategoryCustom, Severity: safety.SeverityMedium},
	}
	require.NoError(t, blacklist.SaveCampaignTerms(ctx, "camp-persist", entries))
	// Saving twice is a no-op thanks to the uniqueness constraint.
	require.NoError(t, blacklist.SaveCampaignTerms(ctx, "camp-persist", entries))

	loaded, err := blacklist.LoadCampaignTerms(ctx)
	require.NoError(t, err)
	require.Len(t, loaded["camp-persist"], 1)
	assert.Equal(t, "rivalco", loaded["camp-persist"][0].Term)

	// Global load falls back to the built-in list when the table has no
	// global rows.
	global, err := blacklist.LoadGlobal(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(safety.DefaultBlacklist()), len(global))
}
