package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// WebFetchTool performs a plain HTTP GET. The constitutional filter
// (internal/permission) is responsible for rejecting dangerous schemes
// and private-IP targets before Execute ever runs; this tool does not
// duplicate that check, matching spec §4.7's framing of it as a single
// upstream gate rather than a per-tool responsibility.
type WebFetchTool struct {
	Client *http.Client
}

func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{Client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *WebFetchTool) Name() string        { return "web_fetch" }
func (t *WebFetchTool) Description() string { return "Fetch a URL over HTTP GET and return its body." }
func (t *WebFetchTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`)
}

func (t *WebFetchTool) Signature(input json.RawMessage, ctx Context) string {
	raw := stringField(input, "url")
	if u, err := url.Parse(raw); err == nil {
		return u.Scheme + "://" + u.Host
	}
	return raw
}

func (t *WebFetchTool) Execute(ctx context.Context, _ Context, input json.RawMessage) Result {
	raw := stringField(input, "url")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return ErrorResult(err.Error())
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return ErrorResult(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ErrorResult(err.Error())
	}
	if resp.StatusCode >= 400 {
		return ErrorResult(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)))
	}
	return OKResult(string(body))
}
