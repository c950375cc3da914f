package store

import (
	"context"
	"fmt"
)

// UpsertVideo inserts or refreshes a video. The thumbnail must already be on
// disk; otherwise ErrMissingFile is returned and nothing is written.
func (s *Store) UpsertVideo(ctx context.Context, v Video) error {
	if v.ID == "" || v.ChannelID == "" {
		return fmt.Errorf("store: video without id or channel")
	}
	switch v.Type {
	case VideoTypeVideo, VideoTypeShort, VideoTypeLive:
	default:
		return fmt.Errorf("store: video %s: invalid type %q", v.ID, v.Type)
	}
	_, err := s.Insert(ctx, TableVideo, v.row())
	return err
}

// Video returns one video; ok is false when it is not stored.
func (s *Store) Video(ctx context.Context, id string) (Video, bool, error) {
	rows, err := s.Fetch(ctx, TableVideo, Query{Where: `"video_id" = ?`, Args: []any{id}, Limit: 1})
	if err != nil || len(rows) == 0 {
		return Video{}, false, err
	}
	return videoFromRow(rows[0]), true, nil
}

// VideosByChannel lists a channel's videos, newest first. typ "" means all types.
func (s *Store) VideosByChannel(ctx context.Context, channelID string, typ VideoType) ([]Video, error) {
	q := Query{Where: `"channel_id" = ?`, Args: []any{channelID}, OrderBy: "pub_date DESC"}
	if typ != "" {
		q.Where += ` AND "video_type" = ?`
		q.Args = append(q.Args, string(typ))
	}
	rows, err := s.Fetch(ctx, TableVideo, q)
	if err != nil {
		return nil, err
	}
	out := make([]Video, len(rows))
	for i, r := range rows {
		out[i] = videoFromRow(r)
	}
	return out, nil
}
