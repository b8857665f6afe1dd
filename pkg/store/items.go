package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/uptrace/bun"

	"github.com/agendawatch/agendawatch/pkg/models"
)

// UpsertItemsAndAttachments reconciles a meeting's item set against a
// fresh agenda fetch in one transaction. Items whose attachment URLs are
// unchanged keep their row, and with it any summary already paid for;
// items with a changed attachment set are replaced and resummarized, and
// items the vendor no longer lists are dropped.
func (s *Store) UpsertItemsAndAttachments(ctx context.Context, meetingID string, detail models.AgendaDetail) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var existing []*ItemRow
		if err := tx.NewSelect().
			Model(&existing).
			Relation("Attachments").
			Where("meeting_id = ?", meetingID).
			Scan(ctx); err != nil {
			return fmt.Errorf("loading items for meeting %s: %w", meetingID, err)
		}
		current := make(map[string]*ItemRow, len(existing))
		for _, row := range existing {
			current[row.ID] = row
		}

		incoming := make(map[string]bool, len(detail.Items))
		for _, item := range detail.Items {
			itemID := models.ItemID(meetingID, item.Sequence)
			incoming[itemID] = true

			if prev, ok := current[itemID]; ok {
				if sameAttachmentURLs(prev.Attachments, item.Attachments) {
					// Unchanged attachment set: refresh the vendor fields
					// and keep the summary.
					if _, err := tx.NewUpdate().
						Model((*ItemRow)(nil)).
						Set("title = ?", item.Title).
						Set("matter_number = ?", nullable(item.MatterNumber)).
						Where("id = ?", itemID).
						Exec(ctx); err != nil {
						return fmt.Errorf("refreshing item %s: %w", itemID, err)
					}
					continue
				}
				if err := deleteItemTx(ctx, tx, itemID); err != nil {
					return err
				}
			}

			row := &ItemRow{
				ID:           itemID,
				MeetingID:    meetingID,
				Sequence:     item.Sequence,
				Title:        item.Title,
				MatterNumber: nullable(item.MatterNumber),
			}
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return fmt.Errorf("inserting item %s: %w", itemID, err)
			}
			for j, att := range item.Attachments {
				meta := ""
				if len(att.Meta) > 0 {
					data, err := json.Marshal(att.Meta)
					if err != nil {
						return fmt.Errorf("encoding attachment meta: %w", err)
					}
					meta = string(data)
				}
				attRow := &AttachmentRow{
					ID:     fmt.Sprintf("att-%s-%d", itemID, j+1),
					ItemID: itemID,
					Name:   att.Name,
					URL:    att.URL,
					Meta:   nullable(meta),
				}
				if _, err := tx.NewInsert().Model(attRow).Exec(ctx); err != nil {
					return fmt.Errorf("inserting attachment for item %s: %w", itemID, err)
				}
			}
		}

		for id := range current {
			if !incoming[id] {
				if err := deleteItemTx(ctx, tx, id); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// sameAttachmentURLs reports whether a stored attachment set and a fresh
// vendor listing point at the same URLs, ignoring order.
func sameAttachmentURLs(rows []*AttachmentRow, atts []models.AgendaAttachment) bool {
	if len(rows) != len(atts) {
		return false
	}
	stored := make([]string, len(rows))
	for i, row := range rows {
		stored[i] = row.URL
	}
	fresh := make([]string, len(atts))
	for i, att := range atts {
		fresh[i] = att.URL
	}
	sort.Strings(stored)
	sort.Strings(fresh)
	for i := range stored {
		if stored[i] != fresh[i] {
			return false
		}
	}
	return true
}

func deleteItemTx(ctx context.Context, tx bun.Tx, itemID string) error {
	if _, err := tx.NewDelete().
		Model((*AttachmentRow)(nil)).
		Where("item_id = ?", itemID).
		Exec(ctx); err != nil {
		return fmt.Errorf("deleting attachments for item %s: %w", itemID, err)
	}
	if _, err := tx.NewDelete().
		Model((*ItemRow)(nil)).
		Where("id = ?", itemID).
		Exec(ctx); err != nil {
		return fmt.Errorf("deleting item %s: %w", itemID, err)
	}
	return nil
}

// ListItems returns the item set of a meeting with attachments loaded,
// ordered by sequence.
func (s *Store) ListItems(ctx context.Context, meetingID string) ([]*ItemRow, error) {
	var rows []*ItemRow
	err := s.db.NewSelect().
		Model(&rows).
		Relation("Attachments").
		Where("meeting_id = ?", meetingID).
		Order("sequence ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing items for meeting %s: %w", meetingID, err)
	}
	return rows, nil
}

// SetItemSummary writes a per-item summary.
func (s *Store) SetItemSummary(ctx context.Context, itemID, summary string) error {
	res, err := s.db.NewUpdate().
		Model((*ItemRow)(nil)).
		Set("summary = ?", summary).
		Where("id = ?", itemID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("setting summary on item %s: %w", itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	return nil
}

// GetItem returns one item with attachments loaded.
func (s *Store) GetItem(ctx context.Context, itemID string) (*ItemRow, error) {
	var row ItemRow
	err := s.db.NewSelect().
		Model(&row).
		Relation("Attachments").
		Where("i.id = ?", itemID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading item %s: %w", itemID, err)
	}
	return &row, nil
}
