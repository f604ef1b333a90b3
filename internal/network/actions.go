package network

import (
	"encoding/json"
	"net/http"

	"github.com/MRamiBalles/tofuwabohu/server/internal/domain/coop"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
)

// Enqueuer accepts actions for the next tick.
type Enqueuer interface {
	Enqueue(coop.Action)
}

// ActionBridge is the command API: it queues coop actions submitted over
// HTTP. Validation against the coop happens on the tick, so a queued action
// may still be rejected; the outcome shows up in the journal.
type ActionBridge struct {
	target Enqueuer
	logger *logger.Logger
}

// NewActionBridge creates a new action handler.
func NewActionBridge(target Enqueuer, log *logger.Logger) *ActionBridge {
	return &ActionBridge{target: target, logger: log}
}

// ActionRequest is the payload for queuing an action, e.g. {"action":"lay:3"}.
type ActionRequest struct {
	Action string `json:"action"`
}

// HandleAction queues one action.
// POST /api/actions
func (ab *ActionBridge) HandleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		ab.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ActionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		ab.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	action, err := coop.ParseAction(req.Action)
	if err != nil {
		ab.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ab.target.Enqueue(action)
	ab.logger.Event("ACTION_QUEUED", r.RemoteAddr, action.Kind.String())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"queued": true,
		"action": action.Kind.String(),
		"count":  action.Count,
	})
}

// RegisterRoutes sets up the action API routes.
func (ab *ActionBridge) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/actions", ab.HandleAction)
}

// jsonError sends an error response.
func (ab *ActionBridge) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
