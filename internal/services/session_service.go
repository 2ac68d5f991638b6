package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SessionStore interface {
	GetSession(participantID string) (*Session, error)
	AddSession(s *Session) error
	SetParticipated(participantID string) (bool, error)
	AddAudit(entry AuditEntry)
}

// SessionService implements the identity-check step: durable participant
// identifiers and the has-participated re-entry gate.
type SessionService struct {
	store SessionStore
	now   func() time.Time
	idGen func() string
}

func NewSessionService(store SessionStore) *SessionService {
	return &SessionService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		idGen: uuid.NewString,
	}
}

type EnsureResult struct {
	Session *Session
	Created bool
}

// Ensure returns the stored session unchanged when existingID is known;
// otherwise it generates a fresh identifier and persists it. Idempotent with
// respect to the returned identifier.
func (s *SessionService) Ensure(existingID string) (*EnsureResult, error) {
	existingID = strings.TrimSpace(existingID)
	if existingID != "" {
		sess, err := s.store.GetSession(existingID)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return &EnsureResult{Session: sess}, nil
		}
	}
	sess := &Session{ParticipantID: s.idGen(), CreatedAt: s.now()}
	if err := s.store.AddSession(sess); err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: s.now(), Actor: "participant", Action: "session_create", Target: sess.ParticipantID})
	return &EnsureResult{Session: sess, Created: true}, nil
}

// MarkParticipated flips the re-entry flag. The first call reports
// alreadyParticipated=false and the session proceeds; every later call
// reports true, routing the client to the terminal view.
func (s *SessionService) MarkParticipated(participantID string) (alreadyParticipated bool, err error) {
	if strings.TrimSpace(participantID) == "" {
		return false, NewInvalidError("participant_id required")
	}
	sess, err := s.store.GetSession(participantID)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, NewNotFoundError("session not found")
	}
	if sess.HasParticipated {
		return true, nil
	}
	if _, err := s.store.SetParticipated(participantID); err != nil {
		return false, err
	}
	return false, nil
}
