package cleanup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendawatch/agendawatch/pkg/config"
	"github.com/agendawatch/agendawatch/pkg/database"
	"github.com/agendawatch/agendawatch/pkg/models"
	"github.com/agendawatch/agendawatch/pkg/queue"
)

func TestCleanupDeletesOldTerminalEntries(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewClient(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	q := queue.New(db, config.DefaultQueueConfig())

	entry, err := q.Enqueue(ctx, models.JobTypeMeeting, models.MeetingPayload{
		MeetingID: "meeting-paloaltoCA-1",
		SourceURL: "https://example.com/packet.pdf",
	})
	require.NoError(t, err)
	_, err = q.Claim(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, entry.ID))

	// Zero retention: everything terminal is past the window and the
	// first collection sweeps it.
	svc := NewService(&config.RetentionConfig{
		TerminalRetention: 0,
		CleanupInterval:   time.Hour,
	}, q)
	svc.Start(ctx)
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		stats, err := q.Stats(ctx)
		return err == nil && stats[queue.StatusCompleted] == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStopWithoutStart(t *testing.T) {
	svc := NewService(config.DefaultRetentionConfig(), nil)
	svc.Stop()
}
