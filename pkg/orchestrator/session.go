package orchestrator

import (
	"sync"

	"github.com/vaultpilot/vaultpilot/pkg/permission"
)

// Session is the state that outlives a single turn: the engine session id
// used to resume conversation context, and the tools approved for this
// session. It is owned by the orchestrator's caller and passed into each
// turn explicitly; resetting the conversation is a pure reset of this
// object. Nothing here is ever written to durable storage.
type Session struct {
	mu              sync.Mutex
	engineSessionID string
	approvals       *permission.SessionApprovals
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{approvals: permission.NewSessionApprovals()}
}

// EngineSessionID returns the resumable engine session id, if any.
func (s *Session) EngineSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engineSessionID
}

// SetEngineSessionID stores the resumable id announced by the engine.
func (s *Session) SetEngineSessionID(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engineSessionID = id
}

// Approvals returns the session-approved tool set.
func (s *Session) Approvals() *permission.SessionApprovals {
	return s.approvals
}

// Reset clears the resumable id and every session approval.
func (s *Session) Reset() {
	s.mu.Lock()
	s.engineSessionID = ""
	s.mu.Unlock()
	s.approvals.Clear()
}
