package statserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/anatolykoptev/statube/internal/engine/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerVideoList(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "video_list",
		Description: "List saved videos of a channel (default: the current channel) with duration, views and likes. Use the video ids with transcripts_fetch, comments_fetch and corpus_analyze.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input VideoListInput) (*mcp.CallToolResult, VideoListOutput, error) {
		channelID, err := d.channelOrCurrent(input.ChannelID)
		if err != nil {
			return nil, VideoListOutput{}, err
		}
		typ := store.VideoType(strings.ToLower(strings.TrimSpace(input.VideoType)))
		switch typ {
		case "", store.VideoTypeVideo, store.VideoTypeShort, store.VideoTypeLive:
		default:
			return nil, VideoListOutput{}, fmt.Errorf("video_type must be video, short or live, got %q", input.VideoType)
		}

		videos, err := d.Store.VideosByChannel(ctx, channelID, typ)
		if err != nil {
			return nil, VideoListOutput{}, err
		}
		out := VideoListOutput{ChannelID: channelID, Total: len(videos), Videos: []VideoRow{}}
		if input.Limit > 0 && len(videos) > input.Limit {
			videos = videos[:input.Limit]
		}
		for _, v := range videos {
			out.Videos = append(out.Videos, videoRow(v))
		}
		return nil, out, nil
	})
}

func videoRow(v store.Video) VideoRow {
	return VideoRow{
		VideoID:       v.ID,
		Type:          string(v.Type),
		Title:         v.Title,
		URL:           v.URL,
		Duration:      engine.FormatDuration(v.Duration),
		Views:         engine.FormatCount(v.ViewCount),
		Likes:         engine.FormatCount(v.LikeCount),
		PubDate:       v.PubDate,
		ThumbnailPath: v.ThumbnailPath,
	}
}
