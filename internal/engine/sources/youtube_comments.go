package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/anatolykoptev/statube/internal/engine/store"
)

const rootParent = "root"

// Parent is a comment's parent: the thread root or another comment.
// The zero value is the root.
type Parent struct {
	id string
}

// RootParent marks a top-level comment.
func RootParent() Parent { return Parent{} }

// ParentID refers to comment id.
func ParentID(id string) Parent {
	if id == rootParent {
		return Parent{}
	}
	return Parent{id: id}
}

func (p Parent) IsRoot() bool { return p.id == "" }
func (p Parent) ID() string   { return p.id }

func (p Parent) MarshalJSON() ([]byte, error) {
	if p.IsRoot() {
		return json.Marshal(rootParent)
	}
	return json.Marshal(p.id)
}

func (p *Parent) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*p = ParentID(s)
	return nil
}

// Comment is one node of a reply tree.
type Comment struct {
	ID          string     `json:"comment_id"`
	Author      string     `json:"author"`
	AuthorID    string     `json:"author_id"`
	Text        string     `json:"text"`
	LikeCount   int64      `json:"like_count"`
	IsFavorited bool       `json:"is_favorited"`
	Timestamp   int64      `json:"timestamp"`
	Parent      Parent     `json:"parent"`
	Replies     []*Comment `json:"replies"`
}

// BuildCommentTree links a flat comment list into threads. The first
// occurrence of an id wins; self-parented comments and replies to unknown
// ids are dropped. Input order only decides sibling order.
func BuildCommentTree(flat []Comment) []*Comment {
	index := make(map[string]*Comment, len(flat))
	order := make([]*Comment, 0, len(flat))
	for _, c := range flat {
		if c.ID == "" || index[c.ID] != nil {
			continue
		}
		node := c
		node.Replies = []*Comment{}
		index[c.ID] = &node
		order = append(order, &node)
	}

	roots := []*Comment{}
	for _, node := range order {
		if node.Parent.IsRoot() {
			roots = append(roots, node)
			continue
		}
		if node.Parent.ID() == node.ID {
			continue
		}
		if parent, ok := index[node.Parent.ID()]; ok {
			parent.Replies = append(parent.Replies, node)
		}
	}
	return roots
}

// CountComments counts every node reachable from roots.
func CountComments(roots []*Comment) int {
	n := 0
	for _, c := range roots {
		n += 1 + CountComments(c.Replies)
	}
	return n
}

// CommentResult is the outcome for one video. FilePath is "" when skipped.
type CommentResult struct {
	ChannelID    string `json:"channel_id"`
	VideoID      string `json:"video_id"`
	FilePath     string `json:"filepath,omitempty"`
	CommentCount int    `json:"comment_count"`
	Remarks      string `json:"remarks,omitempty"`
}

// CommentFetcher downloads comment threads for selected videos.
type CommentFetcher struct {
	store   *store.Store
	ytdlp   *Ytdlp
	baseURL string
}

func NewCommentFetcher(st *store.Store, y *Ytdlp) *CommentFetcher {
	return &CommentFetcher{store: st, ytdlp: y, baseURL: defaultBaseURL}
}

type ytdlpComment struct {
	ID          string `json:"id"`
	Author      string `json:"author"`
	AuthorID    string `json:"author_id"`
	Text        string `json:"text"`
	LikeCount   int64  `json:"like_count"`
	IsFavorited bool   `json:"is_favorited"`
	Timestamp   int64  `json:"timestamp"`
	Parent      string `json:"parent"`
}

// Fetch downloads, links and saves comments for every selected video.
// Per-video failures land in Remarks; only cancellation aborts the batch.
func (c *CommentFetcher) Fetch(ctx context.Context, sel Selection, progress Progress) ([]CommentResult, error) {
	total := sel.Count()
	results := make([]CommentResult, 0, total)
	if total == 0 {
		progress.report(100, "No videos selected")
		return results, nil
	}
	done := 0
	for _, channelID := range slices.Sorted(maps.Keys(sel)) {
		for _, videoID := range sel[channelID] {
			if err := checkCancelled(ctx); err != nil {
				return results, err
			}
			progress.report(float64(done)*100/float64(total), fmt.Sprintf("Comments %d/%d: %s", done+1, total, videoID))
			res, err := c.fetchOne(ctx, channelID, videoID)
			if err != nil {
				return results, err
			}
			results = append(results, res)
			done++
		}
	}
	progress.report(100, fmt.Sprintf("Fetched comments for %d videos", done))
	return results, nil
}

// fetchOne returns an error only on cancellation.
func (c *CommentFetcher) fetchOne(ctx context.Context, channelID, videoID string) (CommentResult, error) {
	res := CommentResult{ChannelID: channelID, VideoID: videoID}
	roots, err := c.download(ctx, videoID)
	if err == nil {
		if err = checkCancelled(ctx); err == nil {
			res.FilePath, err = c.save(channelID, videoID, roots)
		}
	}
	if err != nil {
		if errors.Is(err, engine.ErrCancelled) {
			return res, err
		}
		res.Remarks = commentRemark(err)
		slog.Warn("comments skipped", slog.String("video_id", videoID), slog.String("remarks", res.Remarks))
		return res, nil
	}
	res.CommentCount = CountComments(roots)
	engine.IncrCommentBlobSaved()
	return res, nil
}

func (c *CommentFetcher) download(ctx context.Context, videoID string) ([]*Comment, error) {
	if c.ytdlp == nil {
		return nil, ErrYtdlpNotInstalled
	}
	out, err := c.ytdlp.Run(ctx,
		"--skip-download", "--get-comments", "-J",
		"--extractor-args", "youtube:comment_sort=top",
		videoURL(c.baseURL, videoID))
	if err != nil {
		return nil, err
	}
	return parseComments(out)
}

func parseComments(data []byte) ([]*Comment, error) {
	var payload struct {
		Comments *[]ytdlpComment `json:"comments"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: comments json: %w", engine.ErrParse, err)
	}
	// yt-dlp omits the list entirely when comments are turned off.
	if payload.Comments == nil {
		return nil, fmt.Errorf("%w: no comment section", engine.ErrContentDisabled)
	}
	flat := make([]Comment, 0, len(*payload.Comments))
	for _, yc := range *payload.Comments {
		flat = append(flat, Comment{
			ID:          yc.ID,
			Author:      yc.Author,
			AuthorID:    yc.AuthorID,
			Text:        yc.Text,
			LikeCount:   yc.LikeCount,
			IsFavorited: yc.IsFavorited,
			Timestamp:   yc.Timestamp,
			Parent:      ParentID(yc.Parent),
		})
	}
	return BuildCommentTree(flat), nil
}

func (c *CommentFetcher) save(channelID, videoID string, roots []*Comment) (string, error) {
	data, err := json.MarshalIndent(roots, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: %w", engine.ErrInternal, err)
	}
	path := c.store.CommentPath(channelID, videoID)
	if err := engine.WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func commentRemark(err error) string {
	switch {
	case errors.Is(err, engine.ErrContentDisabled):
		return "comments disabled"
	case errors.Is(err, engine.ErrRemoteNotFound):
		return "video not found"
	}
	return "download error " + err.Error()
}
