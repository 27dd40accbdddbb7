package cdp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrNoTarget is returned when discovery finds no debuggable target.
var ErrNoTarget = errors.New("no debuggable target found")

// TargetInfo describes an entry of the /json/list endpoint.
type TargetInfo struct {
	ID                   string
	Type                 string
	Title                string
	URL                  string
	WebSocketDebuggerURL string
}

// Debuggable reports whether the target exposes the Debugger domain and can
// be connected to.
func (t TargetInfo) Debuggable() bool {
	if t.WebSocketDebuggerURL == "" {
		return false
	}
	switch t.Type {
	case "page", "node", "worker", "service_worker", "iframe":
		return true
	}
	return false
}

// ListTargets fetches the target list from an HTTP DevTools endpoint such as
// "localhost:9222" or "http://127.0.0.1:9229".
func ListTargets(ctx context.Context, client *http.Client, endpoint string) ([]TargetInfo, error) {
	if client == nil {
		client = http.DefaultClient
	}

	base := strings.TrimRight(endpoint, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/json/list", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list targets: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read target list: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("read target list: invalid JSON")
	}

	var targets []TargetInfo
	gjson.ParseBytes(body).ForEach(func(_, v gjson.Result) bool {
		targets = append(targets, TargetInfo{
			ID:                   v.Get("id").String(),
			Type:                 v.Get("type").String(),
			Title:                v.Get("title").String(),
			URL:                  v.Get("url").String(),
			WebSocketDebuggerURL: v.Get("webSocketDebuggerUrl").String(),
		})
		return true
	})

	return targets, nil
}

// ResolveWebSocketURL turns an endpoint into a webSocketDebuggerUrl.
// WebSocket URLs are returned unchanged; HTTP endpoints are queried and the
// first debuggable target whose URL contains match is chosen.
func ResolveWebSocketURL(ctx context.Context, client *http.Client, endpoint, match string) (string, error) {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return endpoint, nil
	}

	targets, err := ListTargets(ctx, client, endpoint)
	if err != nil {
		return "", err
	}

	for _, t := range targets {
		if t.Debuggable() && strings.Contains(t.URL, match) {
			return t.WebSocketDebuggerURL, nil
		}
	}

	if match != "" {
		return "", fmt.Errorf("%w matching %q", ErrNoTarget, match)
	}
	return "", ErrNoTarget
}
