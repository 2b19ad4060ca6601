package trigger

import (
	"encoding/json"
	"net/http"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
)

// requestBody is the wire shape of POST /v1/discovery-requests (SPEC_FULL
// §5.1).
type requestBody struct {
	Category      string `json:"category"`
	Region        string `json:"region"`
	FundingType   string `json:"fundingType"`
	RecipientType string `json:"recipientType"`
	Engine        string `json:"engine"`
}

// responseBody is the wire shape of a successful trigger response.
type responseBody struct {
	RequestID      string `json:"requestId"`
	SessionID      string `json:"sessionId"`
	QueriesEmitted int    `json:"queriesEmitted"`
}

// statusBody is the wire shape of GET /v1/discovery-requests/{requestId}.
// The trigger itself only tracks sessions (the unit of completion); the
// requestId path parameter is resolved to its session by the caller
// supplying the sessionId query parameter, since one request maps to one
// session (spec.md §4.1).
type statusBody struct {
	SessionID              string  `json:"sessionId"`
	Status                 string  `json:"status"`
	CandidatesFound        int     `json:"candidatesFound"`
	DuplicatesDetected     int     `json:"duplicatesDetected"`
	AverageConfidenceScore string  `json:"averageConfidenceScore"`
}

// Handler returns the minimal net/http mux for the Request Trigger's HTTP
// surface (SPEC_FULL §5.1).
func Handler(t *Trigger, logger core.Logger) http.Handler {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/discovery-requests", t.handleSubmit(logger))
	mux.HandleFunc("GET /v1/discovery-requests/{requestId}", t.handleStatus(logger))
	return mux
}

func (t *Trigger) handleSubmit(logger core.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body requestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}

		request := domain.ExecutionRequest{
			Category: body.Category, Region: body.Region, FundingType: body.FundingType,
			RecipientType: body.RecipientType, Engine: domain.Engine(body.Engine),
		}

		outcome, err := t.Submit(r.Context(), request)
		if err != nil {
			logger.ErrorWithContext(r.Context(), "discovery request submission failed", map[string]interface{}{"error": err.Error()})
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(responseBody{
			RequestID: outcome.RequestID, SessionID: outcome.SessionID, QueriesEmitted: outcome.QueriesEmitted,
		})
	}
}

func (t *Trigger) handleStatus(logger core.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("sessionId")
		if sessionID == "" {
			http.Error(w, "sessionId query parameter required", http.StatusBadRequest)
			return
		}

		session, ok := t.orch.Session(sessionID)
		if !ok {
			http.Error(w, "session not found or already completed", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statusBody{
			SessionID:              session.SessionID,
			Status:                 string(session.Status),
			CandidatesFound:        session.CandidatesFound,
			DuplicatesDetected:     session.DuplicatesDetected,
			AverageConfidenceScore: session.AverageConfidenceScore.String(),
		})
	}
}
