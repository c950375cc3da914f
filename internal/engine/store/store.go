// Package store persists channel, video and transcript metadata in SQLite and
// owns the on-disk layout of every blob under the app-data root.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Directory names under the app-data root.
const (
	DirDB          = "DB"
	DirChannels    = "Channels"
	DirThumbnails  = "Thumbnails"
	DirProfilePics = "ProfilePics"
	DirTranscripts = "Transcripts"
	DirComments    = "Comments"
	DirProxies     = "Proxies"
	DirVideos      = "Videos"
	DirData        = "Data"
	DirAnalysis    = "Analysis"

	dbFileName = "data.db"
)

var layout = []string{
	DirDB, DirChannels, DirThumbnails, DirProfilePics, DirTranscripts,
	DirComments, DirProxies, DirVideos, DirData, DirAnalysis,
}

// Store is the local metadata store. Readers share a pool; writers are
// serialized through a single connection.
type Store struct {
	root  string
	read  *sql.DB
	write *sql.DB
}

// Open creates the directory tree under root, opens DB/data.db in WAL mode
// and applies the schema.
func Open(ctx context.Context, root string) (*Store, error) {
	for _, dir := range layout {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}

	dsn := dataSourceName(filepath.Join(root, DirDB, dbFileName))
	write, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open writer: %w", err)
	}
	write.SetMaxOpenConns(1) // SQLite single-writer

	if _, err := write.ExecContext(ctx, schemaSQL); err != nil {
		write.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	read, err := sql.Open("sqlite", dsn)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("store: open readers: %w", err)
	}
	read.SetMaxOpenConns(8)

	slog.Info("store: opened", slog.String("root", root))
	return &Store{root: root, read: read, write: write}, nil
}

func dataSourceName(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + path + "?" + q.Encode()
}

// Close closes both connection pools.
func (s *Store) Close() error {
	rerr := s.read.Close()
	werr := s.write.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// --- Layout ---

// Root returns the app-data root.
func (s *Store) Root() string { return s.root }

// DataDir holds cache documents.
func (s *Store) DataDir() string { return filepath.Join(s.root, DirData) }

// AnalysisDir holds rendered analysis images.
func (s *Store) AnalysisDir() string { return filepath.Join(s.root, DirAnalysis) }

// ScratchDir is where subprocess tools drop intermediate files.
func (s *Store) ScratchDir() string { return filepath.Join(s.root, DirVideos) }

func (s *Store) ThumbnailPath(channelID, videoID string) string {
	return filepath.Join(s.root, DirThumbnails, channelID, videoID+".png")
}

func (s *Store) ProfilePicPath(channelID string) string {
	return filepath.Join(s.root, DirProfilePics, channelID+".png")
}

func (s *Store) TranscriptPath(videoID string) string {
	return filepath.Join(s.root, DirTranscripts, videoID+"_transcript.json")
}

func (s *Store) CommentPath(channelID, videoID string) string {
	return filepath.Join(s.root, DirComments, channelID, videoID+".json")
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
