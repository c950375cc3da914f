package engine

import "testing"

func TestFormatDuration(t *testing.T) {
	ptr := func(v int64) *int64 { return &v }
	tests := []struct {
		name string
		in   *int64
		want string
	}{
		{"nil", nil, "--:--"},
		{"zero", ptr(0), "0:00"},
		{"two minutes", ptr(125), "2:05"},
		{"over an hour", ptr(3725), "62:05"},
		{"negative", ptr(-3), "--:--"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.in); got != tt.want {
				t.Errorf("FormatDuration() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatCount(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1K"},
		{1500, "1.5K"},
		{999_999, "1M"},
		{2_400_000, "2.4M"},
		{3_100_000_000, "3.1B"},
		{-1500, "-1.5K"},
	}
	for _, tt := range tests {
		if got := FormatCount(tt.in); got != tt.want {
			t.Errorf("FormatCount(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1.2M subscribers", 1_200_000},
		{"12,345 views", 12_345},
		{"845K", 845_000},
		{"No views", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseCount(tt.in); got != tt.want {
			t.Errorf("ParseCount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCleanHTML(t *testing.T) {
	if got := CleanHTML("  <b>bold</b> text "); got != "bold text" {
		t.Errorf("CleanHTML() = %q, want %q", got, "bold text")
	}
}
