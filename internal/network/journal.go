package network

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MRamiBalles/tofuwabohu/server/internal/domain/coop"
	"github.com/MRamiBalles/tofuwabohu/server/internal/events"
	"github.com/MRamiBalles/tofuwabohu/server/internal/platform/logger"
)

// JournalHandler serves the journal and the current coop state over HTTP.
type JournalHandler struct {
	eventLog *events.EventLog
	view     coop.View
	logger   *logger.Logger
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(el *events.EventLog, view coop.View, log *logger.Logger) *JournalHandler {
	return &JournalHandler{
		eventLog: el,
		view:     view,
		logger:   log,
	}
}

// JournalResponse is the API response for journal queries.
type JournalResponse struct {
	TotalEvents int                `json:"total_events"`
	FilteredBy  string             `json:"filtered_by,omitempty"`
	GeneratedAt string             `json:"generated_at"`
	Events      []events.GameEvent `json:"events"`
}

// HandleJournal returns journal events, oldest first.
// GET /api/journal?type=TICK_COMMITTED&since=N&limit=M
func (jh *JournalHandler) HandleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	var since uint64
	if s := q.Get("since"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			jh.jsonError(w, "Invalid since", http.StatusBadRequest)
			return
		}
		since = v
	}
	limit := 0
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			jh.jsonError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = v
	}

	typ := events.EventType(q.Get("type"))
	found := jh.eventLog.Filter(typ, since)
	// keep the newest when limited
	if limit > 0 && len(found) > limit {
		found = found[len(found)-limit:]
	}
	if found == nil {
		found = []events.GameEvent{}
	}

	jh.writeJSON(w, JournalResponse{
		TotalEvents: len(found),
		FilteredBy:  string(typ),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Events:      found,
	})
}

// HandleStats returns event counts by type.
// GET /api/journal/stats
func (jh *JournalHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := jh.eventLog.Replay()
	stats := map[events.EventType]int{}
	for _, e := range all {
		stats[e.Type]++
	}

	jh.writeJSON(w, map[string]any{
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"total_events": len(all),
		"stats":        stats,
	})
}

// HandleState returns the live coop counters.
// GET /api/state
func (jh *JournalHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jh.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, ok := jh.view.Snapshot()
	if !ok {
		jh.jsonError(w, "Coop is not running", http.StatusServiceUnavailable)
		return
	}
	jh.writeJSON(w, map[string]any{
		"state":             snap,
		"breeding_progress": snap.BreedingPercent(),
	})
}

// RegisterRoutes sets up the journal API routes.
func (jh *JournalHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/journal", jh.HandleJournal)
	mux.HandleFunc("/api/journal/stats", jh.HandleStats)
	mux.HandleFunc("/api/state", jh.HandleState)
}

func (jh *JournalHandler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		jh.logger.Warn("failed to write journal response", "error", err)
	}
}

// jsonError sends an error response.
func (jh *JournalHandler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
