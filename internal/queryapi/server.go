package queryapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/jobfeed/jobfeed/internal/common/feederrors"
	"github.com/jobfeed/jobfeed/internal/common/health"
	"github.com/jobfeed/jobfeed/internal/common/logging"
)

type PostingsHandler struct {
	engine *Engine
	clock  clock.PassiveClock
}

func NewPostingsHandler(engine *Engine, clk clock.PassiveClock) *PostingsHandler {
	return &PostingsHandler{engine: engine, clock: clk}
}

// NewRouter serves GET /api/v1/postings and /health.
func NewRouter(handler *PostingsHandler, checker health.Checker) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/postings", handler.ListPostings).Methods(http.MethodGet)
	r.Handle("/health", health.NewHealthCheckHttpHandler(checker)).Methods(http.MethodGet)
	return r
}

// GET /api/v1/postings
func (h *PostingsHandler) ListPostings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query(), h.clock.Now())
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.engine.Query(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := feederrors.HTTPStatusFromError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Error("error serving postings")
		message = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("error writing response")
	}
}
