package statserver

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/anatolykoptev/statube/internal/engine/pipeline"
	"github.com/anatolykoptev/statube/internal/engine/sources"
	"github.com/anatolykoptev/statube/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerChannelSearch(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "channel_search",
		Description: "Search YouTube channels by name. Thorough mode (default) returns up to 20 channels with subscriber counts and saves them with their profile pictures; fast mode returns 6 suggestions without saving anything.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ChannelSearchInput) (*mcp.CallToolResult, ChannelSearchOutput, error) {
		query := strings.TrimSpace(input.Query)
		if query == "" {
			return nil, ChannelSearchOutput{}, errors.New("query is required")
		}
		if err := d.offlineErr(); err != nil {
			return nil, ChannelSearchOutput{}, err
		}
		mode := sources.SearchThorough
		if strings.EqualFold(input.Mode, string(sources.SearchFast)) {
			mode = sources.SearchFast
		}

		w := d.Supervisor.Start(pipeline.KindSearch, pipeline.SearchJob(d.Services, query, mode))
		o := toolutil.Collect(ctx, w)
		out := ChannelSearchOutput{Run: runInfo(o), Channels: []sources.ChannelHit{}}
		if hits, ok := toolutil.Result[sources.ChannelHits](o, pipeline.ResultChannels); ok {
			out.Channels = slices.SortedFunc(maps.Values(hits), func(a, b sources.ChannelHit) int { return a.Rank - b.Rank })
		}
		return nil, out, runErr(o)
	})
}

func registerChannelList(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "channel_list",
		Description: "List channels saved by earlier thorough searches, and the current channel.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ ChannelListInput) (*mcp.CallToolResult, ChannelListOutput, error) {
		chans, err := d.Store.Channels(ctx)
		if err != nil {
			return nil, ChannelListOutput{}, err
		}
		out := ChannelListOutput{Channels: chans}
		if d.State != nil {
			out.Current = d.State.Channel()
		}
		return nil, out, nil
	})
}

func registerChannelPurge(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "channel_purge",
		Description: "Delete a saved channel with its videos, thumbnails, transcripts and comment files.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: ptr(true)},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ChannelPurgeInput) (*mcp.CallToolResult, ChannelPurgeOutput, error) {
		id := strings.TrimSpace(input.ChannelID)
		if id == "" {
			return nil, ChannelPurgeOutput{}, errors.New("channel_id is required")
		}
		if err := d.Store.PurgeChannel(ctx, id); err != nil {
			return nil, ChannelPurgeOutput{ChannelID: id}, err
		}
		if d.State != nil && d.State.Channel() == id {
			d.State.SetChannel("")
		}
		return nil, ChannelPurgeOutput{ChannelID: id, Purged: true}, nil
	})
}

func registerChannelVideos(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "channel_videos",
		Description: "Fetch a channel's video catalogue (videos, live streams and optionally Shorts), download thumbnails and save every video. Makes the channel current. Falls back to the channel's uploads feed when yt-dlp is not installed.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input ChannelVideosInput) (*mcp.CallToolResult, ChannelVideosOutput, error) {
		id := strings.TrimSpace(input.ChannelID)
		if id == "" {
			return nil, ChannelVideosOutput{}, errors.New("channel_id is required")
		}
		if err := d.offlineErr(); err != nil {
			return nil, ChannelVideosOutput{}, err
		}
		if d.State != nil {
			d.State.SetChannel(id)
		}
		req := sources.CatalogueRequest{ChannelID: id, ChannelURL: input.ChannelURL, IncludeShorts: input.IncludeShorts}
		w := d.Supervisor.Start(pipeline.KindVideoIngest, pipeline.VideoIngestJob(d.Services, req))
		o := toolutil.Collect(ctx, w)
		out := ChannelVideosOutput{Run: runInfo(o)}
		out.Catalogue, _ = toolutil.Result[*sources.CatalogueResult](o, pipeline.ResultVideos)
		return nil, out, runErr(o)
	})
}

func ptr[T any](v T) *T { return &v }
