package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeBlob(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("blob"), 0o644))
	return path
}

func TestOpenCreatesLayout(t *testing.T) {
	s := openTestStore(t)
	for _, dir := range layout {
		fi, err := os.Stat(filepath.Join(s.Root(), dir))
		require.NoError(t, err, dir)
		assert.True(t, fi.IsDir(), dir)
	}
	assert.FileExists(t, filepath.Join(s.Root(), DirDB, dbFileName))
}

func TestUpsertChannelIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertChannel(ctx, Channel{ID: "X", Name: "Old", SubCount: "10", ProfilePic: "/p.png"}))
	require.NoError(t, s.UpsertChannel(ctx, Channel{ID: "X", Name: "Y", SubCount: "12"}))

	rows, err := s.Fetch(ctx, TableChannel, Query{Where: `"channel_id" = ?`, Args: []any{"X"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Y", rows[0]["name"])
	assert.Equal(t, "12", rows[0]["sub_count"])
	// Omitted picture keeps the stored value.
	assert.Equal(t, "/p.png", rows[0]["profile_pic"])
}

func TestInsertReturnsStableRowid(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.Insert(ctx, TableChannel, Row{"channel_id": "A", "name": "a"})
	require.NoError(t, err)
	id2, err := s.Insert(ctx, TableChannel, Row{"channel_id": "A", "name": "b"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestInsertRejectsUnknownColumn(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Insert(context.Background(), TableChannel, Row{"channel_id": "A", "bogus": 1})
	require.Error(t, err)
	_, err = s.Insert(context.Background(), "CHANNEL; DROP TABLE VIDEO", Row{"channel_id": "A"})
	require.Error(t, err)
}

func TestUpsertVideoRequiresThumbnail(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, Channel{ID: "C"}))

	v := Video{ID: "v1", ChannelID: "C", Type: VideoTypeVideo, ThumbnailPath: s.ThumbnailPath("C", "v1")}
	err := s.UpsertVideo(ctx, v)
	require.ErrorIs(t, err, ErrMissingFile)

	_, ok, err := s.Video(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, ok, "row written without thumbnail")

	writeBlob(t, v.ThumbnailPath)
	require.NoError(t, s.UpsertVideo(ctx, v))
	got, ok, err := s.Video(ctx, "v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, got.Duration)
	assert.Equal(t, VideoTypeVideo, got.Type)
}

func TestUpsertVideoPreservesID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, Channel{ID: "C"}))
	thumb := writeBlob(t, s.ThumbnailPath("C", "v1"))

	d := int64(125)
	require.NoError(t, s.UpsertVideo(ctx, Video{ID: "v1", ChannelID: "C", Type: VideoTypeVideo, Title: "first", ThumbnailPath: thumb}))
	require.NoError(t, s.UpsertVideo(ctx, Video{ID: "v1", ChannelID: "C", Type: VideoTypeVideo, Title: "second", Duration: &d, ViewCount: 1500, ThumbnailPath: thumb}))

	videos, err := s.VideosByChannel(ctx, "C", "")
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "second", videos[0].Title)
	require.NotNil(t, videos[0].Duration)
	assert.Equal(t, int64(125), *videos[0].Duration)
	assert.Equal(t, int64(1500), videos[0].ViewCount)
}

func TestVideoForUnknownChannelConflicts(t *testing.T) {
	s := openTestStore(t)
	thumb := writeBlob(t, s.ThumbnailPath("nope", "v1"))
	err := s.UpsertVideo(context.Background(), Video{ID: "v1", ChannelID: "nope", Type: VideoTypeShort, ThumbnailPath: thumb})
	require.ErrorIs(t, err, engine.ErrStoreConflict)
}

func TestTranscriptRefUniquePerLanguage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p1 := writeBlob(t, filepath.Join(t.TempDir(), "a.json"))
	p2 := writeBlob(t, s.TranscriptPath("v1"))

	require.NoError(t, s.SaveTranscriptRef(ctx, TranscriptRef{ChannelID: "C", VideoID: "v1", Path: p1, Language: "en"}))
	require.NoError(t, s.SaveTranscriptRef(ctx, TranscriptRef{ChannelID: "C", VideoID: "v1", Path: p2, Language: "en"}))
	require.NoError(t, s.SaveTranscriptRef(ctx, TranscriptRef{ChannelID: "C", VideoID: "v1", Path: p2, Language: "de"}))

	refs, err := s.TranscriptRefs(ctx, "C")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	for _, r := range refs {
		assert.Equal(t, p2, r.Path)
	}

	err = s.SaveTranscriptRef(ctx, TranscriptRef{ChannelID: "C", VideoID: "v2", Path: "/missing.json", Language: "en"})
	require.ErrorIs(t, err, ErrMissingFile)
}

func TestFetchOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"b", "c", "a"} {
		_, err := s.Insert(ctx, TableChannel, Row{"channel_id": "id-" + name, "name": name})
		require.NoError(t, err)
	}
	rows, err := s.Fetch(ctx, TableChannel, Query{OrderBy: "name DESC", Limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0]["name"])
	assert.Equal(t, "b", rows[1]["name"])

	_, err = s.Fetch(ctx, TableChannel, Query{OrderBy: "name; DROP TABLE CHANNEL"})
	require.Error(t, err)
}

func TestUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, Channel{ID: "A", Name: "a"}))

	n, err := s.Update(ctx, TableChannel, Row{"sub_count": "1.5K"}, `"channel_id" = ?`, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ch, ok, err := s.Channel(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.5K", ch.SubCount)
}

func TestPurgeChannel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertChannel(ctx, Channel{ID: "C", Name: "c"}))
	thumb := writeBlob(t, s.ThumbnailPath("C", "v1"))
	require.NoError(t, s.UpsertVideo(ctx, Video{ID: "v1", ChannelID: "C", Type: VideoTypeVideo, ThumbnailPath: thumb}))
	tr := writeBlob(t, s.TranscriptPath("v1"))
	require.NoError(t, s.SaveTranscriptRef(ctx, TranscriptRef{ChannelID: "C", VideoID: "v1", Path: tr, Language: "en"}))
	comments := writeBlob(t, s.CommentPath("C", "v1"))

	require.NoError(t, s.PurgeChannel(ctx, "C"))

	_, ok, err := s.Channel(ctx, "C")
	require.NoError(t, err)
	assert.False(t, ok)
	videos, err := s.VideosByChannel(ctx, "C", "")
	require.NoError(t, err)
	assert.Empty(t, videos)
	assert.NoFileExists(t, thumb)
	assert.NoFileExists(t, tr)
	assert.NoFileExists(t, comments)
}
