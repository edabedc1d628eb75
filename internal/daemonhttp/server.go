// Package daemonhttp implements the daemon HTTP surface of spec §6: a
// small liveness/info/stats API, the primary `/v1/messages` completion
// endpoint, and brain management endpoints, plus Prometheus metrics.
//
// Grounded on the teacher's internal/gateway/http_server.go for the
// overall shape (http.ServeMux, promhttp.Handler mounted at /metrics, a
// wrapped http.Server with ReadHeaderTimeout, graceful Shutdown) adapted
// from the teacher's webhook/web-UI surface to spec §6's node-info/
// node-stats/messages/brain-management routes.
package daemonhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"finch/internal/agentloop"
	"finch/internal/brain"
	"finch/internal/node"
	"finch/internal/observability"
	"finch/internal/query"
	"finch/internal/tool"
	"finch/pkg/models"
)

// maxMessageBodyBytes caps POST /v1/messages request bodies at roughly
// 4MB (spec §6: "a request body size cap (≈4 MB); exceeding it returns
// 413 or resets the connection").
const maxMessageBodyBytes = 4 << 20

// LoopFactory builds a fresh agentloop.Config for one /v1/messages
// request. The daemon owns one long-lived provider chain/tool registry;
// this indirection lets the server construct a loop per request without
// depending on a concrete provider type.
type LoopFactory func() agentloop.Config

// Server is the daemon's HTTP surface.
type Server struct {
	Host       string
	Port       int
	Brains     *brain.Registry
	Queries    *query.Manager
	NewLoop    LoopFactory
	ToolCtx    tool.Context
	NodeID     node.Identity
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	HasLocal   bool
	HasTeacher bool

	startTime time.Time
	stats     stats

	httpServer *http.Server
	listener   net.Listener
}

type stats struct {
	queriesProcessed int64
	localQueries     int64
	teacherQueries   int64

	mu           sync.Mutex
	totalLatency time.Duration
}

func (s *stats) record(local bool, latency time.Duration) {
	atomic.AddInt64(&s.queriesProcessed, 1)
	if local {
		atomic.AddInt64(&s.localQueries, 1)
	} else {
		atomic.AddInt64(&s.teacherQueries, 1)
	}
	s.mu.Lock()
	s.totalLatency += latency
	s.mu.Unlock()
}

func (s *stats) snapshot() (processed, local, teacher int64, avgMs float64) {
	processed = atomic.LoadInt64(&s.queriesProcessed)
	local = atomic.LoadInt64(&s.localQueries)
	teacher = atomic.LoadInt64(&s.teacherQueries)
	if processed == 0 {
		return processed, local, teacher, 0
	}
	s.mu.Lock()
	total := s.totalLatency
	s.mu.Unlock()
	avgMs = float64(total.Milliseconds()) / float64(processed)
	return processed, local, teacher, avgMs
}

// NewServer builds a Server. startTime defaults to now.
func NewServer(s *Server) *Server {
	s.startTime = time.Now()
	return s
}

// Mux builds the daemon's route table.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/node/info", s.handleNodeInfo)
	mux.HandleFunc("/v1/node/stats", s.handleNodeStats)
	mux.HandleFunc("/v1/messages", s.handleMessages)
	mux.HandleFunc("/v1/brains", s.handleBrainList)
	mux.HandleFunc("/v1/brains/", s.handleBrainRoute)
	return mux
}

// Start begins serving on Host:Port in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("daemonhttp: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if s.Logger != nil {
				s.Logger.Error(ctx, "daemonhttp: server error", "error", err)
			}
		}
	}()
	if s.Logger != nil {
		s.Logger.Info(ctx, "daemonhttp: listening", "addr", addr)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"uptime_seconds":  uint64(time.Since(s.startTime).Seconds()),
		"active_sessions": s.Queries.Len(),
	})
}

func (s *Server) handleNodeInfo(w http.ResponseWriter, r *http.Request) {
	info := node.CurrentInfo(s.NodeID, s.HasLocal, s.HasTeacher)
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleNodeStats(w http.ResponseWriter, r *http.Request) {
	processed, local, teacher, avgMs := s.stats.snapshot()
	localPct := 0.0
	if processed > 0 {
		localPct = float64(local) / float64(processed) * 100
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queries_processed": processed,
		"local_queries":     local,
		"teacher_queries":   teacher,
		"avg_latency_ms":    avgMs,
		"local_pct":         localPct,
	})
}

// messagesRequest is the POST /v1/messages body: a single user query
// plus, optionally, prior turns to resume a conversation.
type messagesRequest struct {
	Query        string           `json:"query"`
	Conversation []models.Message `json:"conversation,omitempty"`
	Model        string           `json:"model,omitempty"`
}

type messagesResponse struct {
	QueryID      string           `json:"query_id"`
	Text         string           `json:"text"`
	Conversation []models.Message `json:"conversation"`
	TurnsUsed    int              `json:"turns_used"`
	Cancelled    bool             `json:"cancelled"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxMessageBodyBytes)
	var req messagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Query == "" && len(req.Conversation) == 0 {
		writeError(w, http.StatusBadRequest, "query or conversation is required")
		return
	}

	conv := append([]models.Message(nil), req.Conversation...)
	if req.Query != "" {
		conv = append(conv, models.Message{Role: models.RoleUser, Content: []models.ContentBlock{models.Text(req.Query)}})
	}

	cancel := query.NewCancelSignal()
	id := s.Queries.Create(conv)

	cfg := s.NewLoop()
	if req.Model != "" {
		cfg.Model = req.Model
	}
	loop := agentloop.New(cfg, s.ToolCtx, cancel)

	start := time.Now()
	outcome, err := loop.Run(r.Context(), conv)
	elapsed := time.Since(start)
	s.stats.record(outcome != nil && outcome.ProviderUsed == "local", elapsed)

	if err != nil {
		s.Queries.UpdateState(id, query.StateFailed, query.WithError(err))
		s.recordQueryMetric("error", elapsed)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if outcome.Cancelled {
		s.Queries.UpdateState(id, query.StateCancelled)
		s.recordQueryMetric("cancelled", elapsed)
	} else {
		s.Queries.UpdateState(id, query.StateCompleted, query.WithResponse(outcome.Text))
		s.recordQueryMetric("success", elapsed)
	}

	writeJSON(w, http.StatusOK, messagesResponse{
		QueryID:      id,
		Text:         outcome.Text,
		Conversation: outcome.Conversation,
		TurnsUsed:    outcome.TurnsUsed,
		Cancelled:    outcome.Cancelled,
	})
}

func (s *Server) recordQueryMetric(outcome string, elapsed time.Duration) {
	if s.Metrics != nil {
		s.Metrics.RecordQuery(outcome, elapsed.Seconds())
	}
}

func (s *Server) handleBrainList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Brains.ListAll())
}
