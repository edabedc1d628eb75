package daemonhttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"finch/internal/brain"
)

// handleBrainRoute dispatches every /v1/brains/... path spec §6's "Brain
// management endpoints: list, detail-by-id, detail-by-name,
// answer-question, respond-to-plan, cancel" names. Routes:
//
//	GET  /v1/brains/by-id/{id}
//	GET  /v1/brains/by-name/{name}
//	POST /v1/brains/by-id/{id}/answer
//	POST /v1/brains/by-id/{id}/plan-response
//	POST /v1/brains/by-id/{id}/cancel
func (s *Server) handleBrainRoute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/brains/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 {
		writeError(w, http.StatusNotFound, "unknown brain route")
		return
	}

	switch parts[0] {
	case "by-id":
		s.handleBrainByID(w, r, parts[1:])
	case "by-name":
		if len(parts) != 2 {
			writeError(w, http.StatusNotFound, "unknown brain route")
			return
		}
		detail, ok := s.Brains.ByName(parts[1])
		if !ok {
			writeError(w, http.StatusNotFound, "brain not found")
			return
		}
		writeJSON(w, http.StatusOK, detail)
	default:
		writeError(w, http.StatusNotFound, "unknown brain route")
	}
}

func (s *Server) handleBrainByID(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "missing brain id")
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		detail, ok := s.Brains.ByID(id)
		if !ok {
			writeError(w, http.StatusNotFound, "brain not found")
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST only")
		return
	}

	switch parts[1] {
	case "answer":
		var body struct {
			Answer string `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if !s.Brains.AnswerQuestion(id, body.Answer) {
			writeError(w, http.StatusConflict, "brain has no pending question")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case "plan-response":
		var body struct {
			Kind     string `json:"kind"`
			Feedback string `json:"feedback,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		kind := brain.PlanResponseKind(body.Kind)
		switch kind {
		case brain.PlanApprove, brain.PlanReject, brain.PlanChangesRequested:
		default:
			writeError(w, http.StatusBadRequest, "kind must be approve, reject, or changes_requested")
			return
		}
		if !s.Brains.RespondToPlan(id, brain.PlanResponse{Kind: kind, Feedback: body.Feedback}) {
			writeError(w, http.StatusConflict, "brain has no pending plan")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case "cancel":
		if !s.Brains.Cancel(id) {
			writeError(w, http.StatusNotFound, "brain not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		writeError(w, http.StatusNotFound, "unknown brain route")
	}
}
