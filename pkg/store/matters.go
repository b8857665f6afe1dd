package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// UpsertMatter records a recurring legislative matter and its appearance
// on an item. The matter title is normalized to the first item title seen;
// later appearances only add links.
func (s *Store) UpsertMatter(ctx context.Context, banana, matterNumber, title, meetingID, itemID string) (string, error) {
	matterID := models.MatterID(banana, matterNumber)
	row := &MatterRow{
		ID:           matterID,
		Banana:       banana,
		MatterNumber: matterNumber,
		Title:        normalizeMatterTitle(title),
	}
	if _, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx); err != nil {
		return "", fmt.Errorf("upserting matter %s: %w", matterID, err)
	}

	appearance := &AppearanceRow{
		ID:        fmt.Sprintf("appearance-%s-%s", matterID, itemID),
		MatterID:  matterID,
		MeetingID: meetingID,
		ItemID:    itemID,
	}
	if _, err := s.db.NewInsert().
		Model(appearance).
		On("CONFLICT (matter_id, item_id) DO NOTHING").
		Exec(ctx); err != nil {
		return "", fmt.Errorf("recording appearance of %s: %w", matterID, err)
	}
	return matterID, nil
}

// GetMatter returns one matter by composite id.
func (s *Store) GetMatter(ctx context.Context, matterID string) (*MatterRow, error) {
	var row MatterRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", matterID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: matter %s", ErrNotFound, matterID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting matter %s: %w", matterID, err)
	}
	return &row, nil
}

// RecordMatterSummary writes the aggregated summary for a matter.
func (s *Store) RecordMatterSummary(ctx context.Context, matterID, summary string) error {
	res, err := s.db.NewUpdate().
		Model((*MatterRow)(nil)).
		Set("summary = ?", summary).
		Where("id = ?", matterID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("recording summary for matter %s: %w", matterID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: matter %s", ErrNotFound, matterID)
	}
	return nil
}

// ListAppearances returns appearance links for a matter, oldest meeting
// first, so rollup summaries read in chronological order.
func (s *Store) ListAppearances(ctx context.Context, matterID string) ([]*AppearanceRow, error) {
	var rows []*AppearanceRow
	err := s.db.NewSelect().
		Model(&rows).
		Join("JOIN meetings AS m ON m.id = ma.meeting_id").
		Where("ma.matter_id = ?", matterID).
		OrderExpr("m.starts_at ASC, ma.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing appearances for matter %s: %w", matterID, err)
	}
	return rows, nil
}

// normalizeMatterTitle collapses whitespace so the same matter filed with
// different spacing dedups to one title.
func normalizeMatterTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}
