package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// UpsertChannel inserts or refreshes a channel. Rediscovery never duplicates.
func (s *Store) UpsertChannel(ctx context.Context, c Channel) error {
	if c.ID == "" {
		return fmt.Errorf("store: channel without id")
	}
	_, err := s.Insert(ctx, TableChannel, c.row())
	return err
}

// Channel returns one channel; ok is false when it is not stored.
func (s *Store) Channel(ctx context.Context, id string) (Channel, bool, error) {
	rows, err := s.Fetch(ctx, TableChannel, Query{Where: `"channel_id" = ?`, Args: []any{id}, Limit: 1})
	if err != nil || len(rows) == 0 {
		return Channel{}, false, err
	}
	return channelFromRow(rows[0]), true, nil
}

// Channels lists every stored channel by name.
func (s *Store) Channels(ctx context.Context) ([]Channel, error) {
	rows, err := s.Fetch(ctx, TableChannel, Query{OrderBy: "name"})
	if err != nil {
		return nil, err
	}
	out := make([]Channel, len(rows))
	for i, r := range rows {
		out[i] = channelFromRow(r)
	}
	return out, nil
}

// PurgeChannel deletes a channel's rows and every blob stored for it.
func (s *Store) PurgeChannel(ctx context.Context, id string) error {
	refs, err := s.TranscriptRefs(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: purge %s: %w", id, err)
	}
	defer tx.Rollback()
	for _, stmt := range []string{
		`DELETE FROM "TRANSCRIPT" WHERE "channel_id" = ?`,
		`DELETE FROM "VIDEO" WHERE "channel_id" = ?`,
		`DELETE FROM "CHANNEL" WHERE "channel_id" = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return mapErr(TableChannel, "purge", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: purge %s: %w", id, err)
	}

	paths := []string{
		filepath.Join(s.root, DirThumbnails, id),
		filepath.Join(s.root, DirComments, id),
		s.ProfilePicPath(id),
	}
	for _, ref := range refs {
		paths = append(paths, ref.Path)
	}
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			slog.Warn("store: purge blob failed", slog.String("path", p), slog.Any("error", err))
		}
	}
	slog.Info("store: channel purged", slog.String("channel_id", id), slog.Int("transcripts", len(refs)))
	return nil
}
