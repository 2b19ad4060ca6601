// Package orchestrator implements the Session Orchestrator (spec.md §4.6):
// two process-local structures keyed by sessionId — an outstanding-event
// counter and a session-scoped seen-hosts set — plus the session record
// itself. Grounded on the teacher's pkg/orchestration.StandardOrchestrator
// (in-memory maps guarded by sync.RWMutex, a metrics/history side
// structure), generalized from orchestrating AI-agent calls to
// orchestrating pipeline session bookkeeping.
package orchestrator

import (
	"sync"
	"time"

	"github.com/kevinhagel/northstar-funding/core"
	"github.com/kevinhagel/northstar-funding/domain"
)

// sessionState is the process-local bookkeeping for one in-flight session.
type sessionState struct {
	session     *domain.DiscoverySession
	outstanding int
	seenHosts   map[string]struct{}
	hadError    bool
}

// SessionOrchestrator tracks every in-flight DiscoverySession's outstanding
// event count and dedup set, clearing both on session completion.
type SessionOrchestrator struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
	logger   core.Logger
}

// New builds an empty SessionOrchestrator.
func New(logger core.Logger) *SessionOrchestrator {
	if logger == nil {
		logger = core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("orchestrator/session")
	}
	return &SessionOrchestrator{sessions: make(map[string]*sessionState), logger: logger}
}

// StartSession registers a new session with its initial outstanding count
// — the number of SearchRequestEvents the trigger published for it
// (spec.md §4.6: "outstanding starts at the number of events the trigger
// published for the session").
func (o *SessionOrchestrator) StartSession(sessionID string, outstandingEvents int, now time.Time) *domain.DiscoverySession {
	session := &domain.DiscoverySession{
		SessionID: sessionID,
		StartedAt: now,
		Status:    domain.SessionRunning,
	}

	o.mu.Lock()
	o.sessions[sessionID] = &sessionState{
		session:     session,
		outstanding: outstandingEvents,
		seenHosts:   make(map[string]struct{}),
	}
	o.mu.Unlock()

	return session
}

// Session returns the tracked session, or (nil, false) if it is unknown or
// already terminal and cleared.
func (o *SessionOrchestrator) Session(sessionID string) (*domain.DiscoverySession, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, ok := o.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return st.session, true
}

// MarkSeenHost reports whether host was already seen for sessionID,
// recording it if not (spec.md §4.6 seenHosts dedup set). An unknown
// sessionID is treated as never-seen and is a no-op beyond the boolean
// return, since there is nothing to record it against.
func (o *SessionOrchestrator) MarkSeenHost(sessionID, host string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.sessions[sessionID]
	if !ok {
		return false
	}
	if _, seen := st.seenHosts[host]; seen {
		return true
	}
	st.seenHosts[host] = struct{}{}
	return false
}

// RecordTerminalError marks that sessionID had at least one per-request
// terminal error, used by FinishSession to decide between COMPLETED, FAILED
// and PARTIAL.
func (o *SessionOrchestrator) RecordTerminalError(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st, ok := o.sessions[sessionID]; ok {
		st.hadError = true
	}
}

// DecrementOutstanding records that one (requestId, engine) flight finished
// (validated-or-error event processed), returning the remaining count and
// whether the session has now reached zero (spec.md §4.6).
func (o *SessionOrchestrator) DecrementOutstanding(sessionID string) (remaining int, exhausted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.sessions[sessionID]
	if !ok {
		return 0, false
	}
	if st.outstanding > 0 {
		st.outstanding--
	}
	return st.outstanding, st.outstanding == 0
}

// FinishSession transitions the session to its terminal status (COMPLETED
// when no terminal error was recorded; FAILED when one was and there are
// zero candidates; PARTIAL when one was and candidates exist) and clears
// both process-local
// structures for sessionID (spec.md §4.6: "cleared when the session
// reaches a terminal state and the result records are flushed").
func (o *SessionOrchestrator) FinishSession(sessionID string, now time.Time) *domain.DiscoverySession {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.sessions[sessionID]
	if !ok {
		return nil
	}

	switch {
	case st.hadError && st.session.CandidatesFound == 0:
		st.session.Status = domain.SessionFailed
	case st.hadError:
		st.session.Status = domain.SessionPartial
	default:
		st.session.Status = domain.SessionCompleted
	}

	session := st.session
	delete(o.sessions, sessionID)
	o.logger.Info("session finished", map[string]interface{}{
		"sessionId": sessionID, "status": string(session.Status),
	})
	return session
}

// ActiveSessionCount reports how many sessions are currently tracked, for
// metrics and tests.
func (o *SessionOrchestrator) ActiveSessionCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.sessions)
}
