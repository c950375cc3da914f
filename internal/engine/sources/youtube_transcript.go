package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/statube/internal/engine"
	"github.com/anatolykoptev/statube/internal/engine/store"
	"golang.org/x/net/html"
)

// ytInitialPlayerResponseMarker marks the player response JSON in watch page HTML.
const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

const defaultTranscriptLanguage = "en"

// TranscriptResult is the outcome for one video. Path is "" when skipped.
type TranscriptResult struct {
	ChannelID string `json:"channel_id"`
	VideoID   string `json:"video_id"`
	Path      string `json:"transcript_path,omitempty"`
	Language  string `json:"language"`
	Captions  int    `json:"captions"`
	Remarks   string `json:"remarks,omitempty"`
}

// TranscriptFetcher downloads captions for selected videos.
type TranscriptFetcher struct {
	store   *store.Store
	fetch   Fetcher
	ytdlp   *Ytdlp
	baseURL string
}

// NewTranscriptFetcher creates a fetcher. ytdlp may be nil to use the
// watch-page caption tracks only.
func NewTranscriptFetcher(st *store.Store, f Fetcher, y *Ytdlp) *TranscriptFetcher {
	return &TranscriptFetcher{store: st, fetch: f, ytdlp: y, baseURL: defaultBaseURL}
}

// Fetch retrieves transcripts for every selected video. Missing captions are
// recorded per item; only cancellation aborts the batch.
func (t *TranscriptFetcher) Fetch(ctx context.Context, sel Selection, language string, progress Progress) ([]TranscriptResult, error) {
	language = normLanguage(language)
	total := sel.Count()
	results := make([]TranscriptResult, 0, total)
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
			progress.report(float64(done)*100/float64(total), fmt.Sprintf("Transcript %d/%d: %s", done+1, total, videoID))
			res := TranscriptResult{ChannelID: channelID, VideoID: videoID, Language: language}
			n, path, err := t.fetchOne(ctx, channelID, videoID, language)
			switch {
			case err == nil:
				res.Path, res.Captions = path, n
				engine.IncrTranscriptSaved()
			case errors.Is(err, engine.ErrCancelled):
				return results, err
			default:
				res.Remarks = remarkFor(err)
				slog.Warn("transcript skipped", slog.String("video_id", videoID), slog.Any("error", err))
			}
			results = append(results, res)
			done++
		}
	}
	progress.report(100, fmt.Sprintf("Fetched %d transcripts", countSaved(results)))
	return results, nil
}

func (t *TranscriptFetcher) fetchOne(ctx context.Context, channelID, videoID, language string) (int, string, error) {
	var (
		doc *Transcript
		err error
	)
	if t.ytdlp != nil {
		doc, err = t.viaYtdlp(ctx, videoID, language)
		if errors.Is(err, ErrYtdlpNotInstalled) {
			doc, err = t.viaWatchPage(ctx, videoID, language)
		}
	} else {
		doc, err = t.viaWatchPage(ctx, videoID, language)
	}
	if err != nil {
		return 0, "", err
	}
	if len(doc.Captions) == 0 {
		return 0, "", fmt.Errorf("%w: no captions", engine.ErrRemoteNotFound)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return 0, "", fmt.Errorf("%w: %w", engine.ErrInternal, err)
	}
	path := t.store.TranscriptPath(videoID)
	if err := engine.WriteFileAtomic(path, data); err != nil {
		return 0, "", err
	}
	// Nothing is registered once cancellation has been seen.
	if err := checkCancelled(ctx); err != nil {
		os.Remove(path)
		return 0, "", err
	}
	if err := t.store.SaveTranscriptRef(ctx, store.TranscriptRef{
		ChannelID: channelID, VideoID: videoID, Path: path, Language: language,
	}); err != nil {
		os.Remove(path)
		return 0, "", err
	}
	return len(doc.Captions), path, nil
}

// viaYtdlp writes <scratch>/<id>.<lang>.vtt, parses it and removes it.
func (t *TranscriptFetcher) viaYtdlp(ctx context.Context, videoID, language string) (*Transcript, error) {
	scratch := t.store.ScratchDir()
	out, err := t.ytdlp.Run(ctx,
		"--skip-download", "--no-simulate", "-j",
		"--write-subs", "--write-auto-subs",
		"--sub-langs", language, "--sub-format", "vtt",
		"-o", filepath.Join(scratch, "%(id)s.%(ext)s"),
		videoURL(t.baseURL, videoID))
	if err != nil {
		return nil, err
	}
	var info struct {
		Title      string `json:"title"`
		WebpageURL string `json:"webpage_url"`
	}
	_ = json.Unmarshal(lastJSONLine(out), &info)

	matches, _ := filepath.Glob(filepath.Join(scratch, videoID+".*.vtt"))
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: no %s captions", engine.ErrRemoteNotFound, language)
	}
	defer func() {
		for _, m := range matches {
			os.Remove(m)
		}
	}()
	f, err := os.Open(matches[0])
	if err != nil {
		return nil, fmt.Errorf("open vtt: %w", err)
	}
	defer f.Close()
	captions, err := ParseVTT(f)
	if err != nil {
		return nil, err
	}
	url := info.WebpageURL
	if url == "" {
		url = videoURL(t.baseURL, videoID)
	}
	return &Transcript{VideoID: videoID, Title: info.Title, URL: url, Captions: captions}, nil
}

type playerResponse struct {
	VideoDetails struct {
		Title string `json:"title"`
	} `json:"videoDetails"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

type timedText struct {
	Lines []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
}

// viaWatchPage reads caption tracks from ytInitialPlayerResponse and
// downloads the timedtext XML of the best track.
func (t *TranscriptFetcher) viaWatchPage(ctx context.Context, videoID, language string) (*Transcript, error) {
	page, err := t.fetch.GetPage(ctx, videoURL(t.baseURL, videoID), map[string]string{"accept-language": "en-US,en;q=0.9"})
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	idx := bytes.Index(page, []byte(ytInitialPlayerResponseMarker))
	if idx < 0 {
		return nil, fmt.Errorf("%w: ytInitialPlayerResponse not found", engine.ErrParse)
	}
	raw := extractJSON(page[idx+len(ytInitialPlayerResponseMarker):])
	if raw == nil {
		return nil, fmt.Errorf("%w: failed to extract ytInitialPlayerResponse", engine.ErrParse)
	}
	var pr playerResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("%w: player response: %w", engine.ErrParse, err)
	}
	if pr.Captions == nil || len(pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks) == 0 {
		if pr.PlayabilityStatus != nil && pr.PlayabilityStatus.Status == "ERROR" {
			return nil, fmt.Errorf("%w: %s", engine.ErrRemoteNotFound, pr.PlayabilityStatus.Reason)
		}
		return nil, fmt.Errorf("%w: no caption tracks", engine.ErrRemoteNotFound)
	}
	track, ok := pickBestTrack(pr.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, language)
	if !ok {
		return nil, fmt.Errorf("%w: no %s caption track", engine.ErrRemoteNotFound, language)
	}
	body, err := t.fetch.GetPage(ctx, track.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("timedtext: %w", err)
	}
	captions, err := parseTimedText(body)
	if err != nil {
		return nil, err
	}
	return &Transcript{
		VideoID:  videoID,
		Title:    pr.VideoDetails.Title,
		URL:      videoURL(t.baseURL, videoID),
		Captions: captions,
	}, nil
}

// pickBestTrack prefers a manual track in language, then an auto-generated
// one. Tracks needing a PoToken (&exp=xpe) cannot be fetched server-side.
func pickBestTrack(tracks []captionTrack, language string) (captionTrack, bool) {
	var auto *captionTrack
	for i, tr := range tracks {
		if strings.Contains(tr.BaseURL, "&exp=xpe") || !sameLanguage(tr.LanguageCode, language) {
			continue
		}
		if tr.Kind != "asr" {
			return tr, true
		}
		if auto == nil {
			auto = &tracks[i]
		}
	}
	if auto != nil {
		return *auto, true
	}
	return captionTrack{}, false
}

func sameLanguage(code, want string) bool {
	code, want = strings.ToLower(code), strings.ToLower(want)
	return code == want || strings.HasPrefix(code, want+"-")
}

func parseTimedText(body []byte) ([]Caption, error) {
	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("%w: timedtext xml: %w", engine.ErrParse, err)
	}
	out := make([]Caption, 0, len(tt.Lines))
	for _, l := range tt.Lines {
		text := strings.Join(strings.Fields(html.UnescapeString(engine.CleanHTML(l.Text))), " ")
		if text == "" {
			continue
		}
		start, _ := strconv.ParseFloat(l.Start, 64)
		dur, _ := strconv.ParseFloat(l.Dur, 64)
		out = append(out, Caption{
			Start: formatCueTime(secondsDuration(start)),
			End:   formatCueTime(secondsDuration(start + dur)),
			Text:  text,
		})
	}
	return out, nil
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// lastJSONLine returns the last non-empty line of yt-dlp -j output.
func lastJSONLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte("\n"))
	return lines[len(lines)-1]
}

func normLanguage(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = engine.Cfg.TranscriptLanguage
	}
	if lang == "" {
		lang = defaultTranscriptLanguage
	}
	return lang
}

// remarkFor renders a per-item failure for results.
func remarkFor(err error) string {
	switch {
	case errors.Is(err, engine.ErrContentDisabled):
		return "disabled"
	case errors.Is(err, engine.ErrRemoteNotFound):
		return "not found: " + err.Error()
	case errors.Is(err, engine.ErrParse):
		return "parse error: " + err.Error()
	}
	return "download error " + err.Error()
}

func countSaved(rs []TranscriptResult) int {
	n := 0
	for _, r := range rs {
		if r.Path != "" {
			n++
		}
	}
	return n
}
