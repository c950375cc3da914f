package store

import (
	"context"
	"fmt"
)

// SaveTranscriptRef registers a transcript file; a second save for the same
// (video, language) replaces the path.
func (s *Store) SaveTranscriptRef(ctx context.Context, t TranscriptRef) error {
	if t.VideoID == "" || t.Language == "" {
		return fmt.Errorf("store: transcript without video or language")
	}
	_, err := s.Insert(ctx, TableTranscript, t.row())
	return err
}

// TranscriptRefs lists transcripts for a channel; channelID "" lists all.
func (s *Store) TranscriptRefs(ctx context.Context, channelID string) ([]TranscriptRef, error) {
	q := Query{OrderBy: "video_id"}
	if channelID != "" {
		q.Where, q.Args = `"channel_id" = ?`, []any{channelID}
	}
	rows, err := s.Fetch(ctx, TableTranscript, q)
	if err != nil {
		return nil, err
	}
	out := make([]TranscriptRef, len(rows))
	for i, r := range rows {
		out[i] = transcriptFromRow(r)
	}
	return out, nil
}
