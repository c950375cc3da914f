package store

import "fmt"

// VideoType classifies catalogue entries.
type VideoType string

const (
	VideoTypeVideo VideoType = "video"
	VideoTypeShort VideoType = "short"
	VideoTypeLive  VideoType = "live"
)

// Channel is one CHANNEL row.
type Channel struct {
	ID          string `json:"channel_id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	SubCount    string `json:"sub_count"`
	Description string `json:"desc"`
	ProfilePic  string `json:"profile_pic,omitempty"`
}

// Video is one VIDEO row. Duration is in seconds, nil when unknown.
type Video struct {
	ID            string    `json:"video_id"`
	ChannelID     string    `json:"channel_id"`
	Type          VideoType `json:"video_type"`
	URL           string    `json:"video_url"`
	Title         string    `json:"title"`
	Description   string    `json:"desc"`
	Duration      *int64    `json:"duration,omitempty"`
	ViewCount     int64     `json:"view_count"`
	LikeCount     int64     `json:"like_count"`
	PubDate       string    `json:"pub_date"`
	ThumbnailPath string    `json:"thumbnail_path"`
}

// TranscriptRef is one TRANSCRIPT row.
type TranscriptRef struct {
	ChannelID string `json:"channel_id"`
	VideoID   string `json:"video_id"`
	Path      string `json:"transcript_path"`
	Language  string `json:"language"`
}

func (c Channel) row() Row {
	r := Row{
		"channel_id": c.ID,
		"name":       c.Name,
		"url":        c.URL,
		"sub_count":  c.SubCount,
		"desc":       c.Description,
	}
	// An empty picture keeps whatever an earlier search stored.
	if c.ProfilePic != "" {
		r["profile_pic"] = c.ProfilePic
	}
	return r
}

func (v Video) row() Row {
	var duration any
	if v.Duration != nil {
		duration = *v.Duration
	}
	return Row{
		"video_id":       v.ID,
		"channel_id":     v.ChannelID,
		"video_type":     string(v.Type),
		"video_url":      v.URL,
		"title":          v.Title,
		"desc":           v.Description,
		"duration":       duration,
		"view_count":     v.ViewCount,
		"like_count":     v.LikeCount,
		"pub_date":       v.PubDate,
		"thumbnail_path": v.ThumbnailPath,
	}
}

func (t TranscriptRef) row() Row {
	return Row{
		"channel_id":      t.ChannelID,
		"video_id":        t.VideoID,
		"transcript_path": t.Path,
		"language":        t.Language,
	}
}

func channelFromRow(r Row) Channel {
	return Channel{
		ID:          asString(r["channel_id"]),
		Name:        asString(r["name"]),
		URL:         asString(r["url"]),
		SubCount:    asString(r["sub_count"]),
		Description: asString(r["desc"]),
		ProfilePic:  asString(r["profile_pic"]),
	}
}

func videoFromRow(r Row) Video {
	v := Video{
		ID:            asString(r["video_id"]),
		ChannelID:     asString(r["channel_id"]),
		Type:          VideoType(asString(r["video_type"])),
		URL:           asString(r["video_url"]),
		Title:         asString(r["title"]),
		Description:   asString(r["desc"]),
		ViewCount:     asInt64(r["view_count"]),
		LikeCount:     asInt64(r["like_count"]),
		PubDate:       asString(r["pub_date"]),
		ThumbnailPath: asString(r["thumbnail_path"]),
	}
	if d := r["duration"]; d != nil {
		n := asInt64(d)
		v.Duration = &n
	}
	return v
}

func transcriptFromRow(r Row) TranscriptRef {
	return TranscriptRef{
		ChannelID: asString(r["channel_id"]),
		VideoID:   asString(r["video_id"]),
		Path:      asString(r["transcript_path"]),
		Language:  asString(r["language"]),
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
