package statserver

import (
	"context"
	"errors"
	"time"

	"github.com/anatolykoptev/statube/internal/engine/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerRunCancel(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_cancel",
		Description: "Cancel a running job by run_id, or the active job of a kind (search, video_ingest, transcripts, comments, analysis). Artifacts saved before cancellation are kept.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, input RunCancelInput) (*mcp.CallToolResult, RunCancelOutput, error) {
		switch {
		case input.RunID != "":
			return nil, RunCancelOutput{RunID: input.RunID, Cancelled: d.Supervisor.Cancel(input.RunID)}, nil
		case input.Kind != "":
			w, ok := d.Supervisor.Active(pipeline.Kind(input.Kind))
			if !ok {
				return nil, RunCancelOutput{}, nil
			}
			w.Cancel()
			return nil, RunCancelOutput{RunID: w.ID(), Cancelled: true}, nil
		}
		return nil, RunCancelOutput{}, errors.New("run_id or kind is required")
	})
}

func registerProxyStatus(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "proxy_status",
		Description: "Show the validated proxy pool and whether the app runs offline.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, _ *mcp.CallToolRequest, _ ProxyStatusInput) (*mcp.CallToolResult, ProxyStatusOutput, error) {
		var out ProxyStatusOutput
		if d.State != nil {
			out.Offline = d.State.Offline()
		}
		if d.Proxy == nil {
			return nil, out, nil
		}
		out.Enabled = true
		for _, rec := range d.Proxy.Snapshot() {
			row := ProxyRow{Endpoint: rec.Endpoint, Protocol: string(rec.Protocol)}
			if !rec.LastValidatedAt.IsZero() {
				row.LastValidated = rec.LastValidatedAt.UTC().Format(time.RFC3339)
			}
			out.Proxies = append(out.Proxies, row)
		}
		out.Count = len(out.Proxies)
		return nil, out, nil
	})
}
