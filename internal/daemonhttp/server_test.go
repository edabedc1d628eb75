package daemonhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"finch/internal/agentloop"
	"finch/internal/brain"
	"finch/internal/permission"
	"finch/internal/provider"
	"finch/internal/query"
	"finch/internal/tool"
	"finch/pkg/models"
)

type fakeSender struct{}

func (fakeSender) Send(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	return &provider.Response{
		Content:      []models.ContentBlock{models.Text("ack: " + req.Messages[len(req.Messages)-1].TextContent())},
		ProviderName: "local",
	}, nil
}

func newTestServer() *Server {
	reg := tool.NewRegistry()
	perm := permission.NewManager(nil, permission.RuleAllow)
	executor := tool.NewExecutor(reg, perm, nil, false, nil)

	return NewServer(&Server{
		Host:    "127.0.0.1",
		Port:    0,
		Brains:  brain.NewRegistry(),
		Queries: query.NewManager(),
		NewLoop: func() agentloop.Config {
			return agentloop.Config{Sender: fakeSender{}, Registry: reg, Executor: executor, MaxTurns: 3}
		},
		HasLocal: true,
	})
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestHandleMessagesRoundTrip(t *testing.T) {
	s := newTestServer()
	payload := `{"query":"hello there"}`
	req := httptest.NewRequest("POST", "/v1/messages", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.handleMessages(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var body messagesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Text != "ack: hello there" {
		t.Errorf("Text = %q", body.Text)
	}

	processed, local, _, _ := s.stats.snapshot()
	if processed != 1 || local != 1 {
		t.Errorf("stats = processed=%d local=%d, want 1,1", processed, local)
	}
}

func TestHandleMessagesRejectsOversizedBody(t *testing.T) {
	s := newTestServer()
	big := bytes.Repeat([]byte("x"), maxMessageBodyBytes+1)
	payload := `{"query":"` + string(big) + `"}`
	req := httptest.NewRequest("POST", "/v1/messages", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	s.handleMessages(rec, req)

	if rec.Code != 413 {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestHandleMessagesRejectsEmptyBody(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("POST", "/v1/messages", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.handleMessages(rec, req)

	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestBrainRoutesAnswerQuestion(t *testing.T) {
	s := newTestServer()
	entry := s.Brains.Insert("investigate auth tests")
	ch, ok := s.Brains.AskQuestion(entry.ID, "which suite?", nil)
	if !ok {
		t.Fatal("AskQuestion failed")
	}

	req := httptest.NewRequest("POST", "/v1/brains/by-id/"+entry.ID+"/answer", strings.NewReader(`{"answer":"auth_test.go"}`))
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	select {
	case answer := <-ch:
		if answer != "auth_test.go" {
			t.Errorf("answer = %q", answer)
		}
	default:
		t.Error("expected answer to be delivered on the reply channel")
	}
}

func TestBrainRoutesDetailByName(t *testing.T) {
	s := newTestServer()
	entry := s.Brains.Insert("fix the flaky build")

	req := httptest.NewRequest("GET", "/v1/brains/by-name/"+entry.Name, nil)
	rec := httptest.NewRecorder()
	s.Mux().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestNodeStatsReportsLocalPct(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest("POST", "/v1/messages", strings.NewReader(`{"query":"hi"}`))
	s.handleMessages(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	s.handleNodeStats(rec, httptest.NewRequest("GET", "/v1/node/stats", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["local_pct"].(float64) != 100 {
		t.Errorf("local_pct = %v, want 100", body["local_pct"])
	}
}
