package statserver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/anatolykoptev/statube/internal/engine/pipeline"
	"github.com/anatolykoptev/statube/internal/engine/proxy"
	"github.com/anatolykoptev/statube/internal/engine/sources"
	"github.com/anatolykoptev/statube/internal/engine/store"
	"github.com/anatolykoptev/statube/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Deps are the shared collaborators of every tool. Proxy may be nil.
type Deps struct {
	Store      *store.Store
	State      *pipeline.AppState
	Supervisor *pipeline.Supervisor
	Services   *pipeline.Services
	Proxy      *proxy.Pool
}

// RegisterTools registers all statube tools on the given MCP server:
// channel_search, channel_list, channel_purge, channel_videos, video_list,
// transcripts_fetch, comments_fetch, corpus_analyze, run_cancel, proxy_status.
func RegisterTools(server *mcp.Server, d *Deps) {
	registerChannelSearch(server, d)
	registerChannelList(server, d)
	registerChannelPurge(server, d)
	registerChannelVideos(server, d)
	registerVideoList(server, d)
	registerTranscriptsFetch(server, d)
	registerCommentsFetch(server, d)
	registerCorpusAnalyze(server, d)
	registerRunCancel(server, d)
	registerProxyStatus(server, d)
}

// ToolCount is the number of tools RegisterTools adds.
const ToolCount = 10

// RunInfo describes a finished run in every run-backed tool output.
type RunInfo struct {
	RunID   string   `json:"run_id"`
	State   string   `json:"state"`
	Percent int      `json:"percent"`
	Status  []string `json:"status,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func runInfo(o toolutil.RunOutcome) RunInfo {
	info := RunInfo{RunID: o.RunID, State: o.State.String(), Percent: o.Percent, Status: o.Statuses}
	if o.Err != nil {
		info.Error, _, _ = strings.Cut(o.Err.Error(), "\n")
	}
	return info
}

// runErr turns a failed run into a tool error; cancelled runs are reported
// through RunInfo instead.
func runErr(o toolutil.RunOutcome) error {
	if o.State == pipeline.Failed {
		return o.Err
	}
	return nil
}

// offlineErr rejects remote-backed tools while the app is offline.
func (d *Deps) offlineErr() error {
	if d.State != nil && d.State.Offline() {
		return errors.New("offline: remote sources are unreachable, only stored data is available")
	}
	return nil
}

// channelOrCurrent resolves an empty channel id to the current channel.
func (d *Deps) channelOrCurrent(id string) (string, error) {
	if id = strings.TrimSpace(id); id != "" {
		return id, nil
	}
	if d.State != nil && d.State.Channel() != "" {
		return d.State.Channel(), nil
	}
	return "", errors.New("channel_id is required (no current channel)")
}

// selection builds a one-channel selection; no video ids selects every
// stored video of the channel.
func (d *Deps) selection(ctx context.Context, channelID string, videoIDs []string) (sources.Selection, error) {
	ids := slices.DeleteFunc(slices.Clone(videoIDs), func(s string) bool { return strings.TrimSpace(s) == "" })
	if len(ids) == 0 {
		videos, err := d.Store.VideosByChannel(ctx, channelID, "")
		if err != nil {
			return nil, err
		}
		for _, v := range videos {
			ids = append(ids, v.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no videos stored for channel %s; run channel_videos first", channelID)
	}
	sel := sources.Selection{channelID: ids}
	if d.State != nil {
		d.State.SetSelection(sel)
	}
	return sel, nil
}
