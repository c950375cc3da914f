// Package proxy maintains a bounded set of validated proxies and vends them
// with a round-robin policy.
package proxy

import (
	"bufio"
	"net"
	"net/url"
	"strings"
	"time"
)

// Protocol is the proxy scheme.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolSOCKS Protocol = "socks5"
)

// Record is one proxy endpoint.
type Record struct {
	Endpoint        string    `json:"endpoint"` // host:port
	Protocol        Protocol  `json:"protocol"`
	LastValidatedAt time.Time `json:"last_validated_at"`
}

// URL returns the proxy URL usable by net/http and yt-dlp.
func (r Record) URL() *url.URL {
	p := r.Protocol
	if p == "" {
		p = ProtocolHTTP
	}
	return &url.URL{Scheme: string(p), Host: r.Endpoint}
}

// ParseCandidates reads a plain-text list with one host:port per line. Lines
// may carry an http://, socks5:// or socks4:// prefix; blanks, comments and
// malformed entries are skipped, duplicates collapse.
func ParseCandidates(text string) []Record {
	var out []Record
	seen := make(map[string]bool)
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		proto := ProtocolHTTP
		if scheme, rest, ok := strings.Cut(line, "://"); ok {
			switch strings.ToLower(scheme) {
			case "socks5", "socks5h", "socks4", "socks":
				proto = ProtocolSOCKS
			case "http", "https":
			default:
				continue
			}
			line = rest
		}
		line = strings.TrimSuffix(line, "/")
		host, port, err := net.SplitHostPort(line)
		if err != nil || host == "" || port == "" {
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, Record{Endpoint: line, Protocol: proto})
	}
	return out
}
