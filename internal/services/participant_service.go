package services

import "time"

type ParticipantStore interface {
	GetSession(participantID string) (*Session, error)
	GetCondition(participantID string) (*Condition, error)
	ListSubmissionsByParticipant(participantID string) ([]*SubmissionRecord, error)
	ListChatTurns(participantID string) ([]ChatTurn, error)
	ListScraps(participantID string) ([]Scrap, error)
	DeleteParticipantData(participantID string) (bool, error)
	AddAudit(entry AuditEntry)
}

// ParticipantDataService handles researcher-side data requests for a
// single participant: a full export of everything held locally, and
// deletion of that local copy. Records already pushed to the external
// record store are out of its reach and must be removed there.
type ParticipantDataService struct {
	store ParticipantStore
}

func NewParticipantDataService(store ParticipantStore) *ParticipantDataService {
	return &ParticipantDataService{store: store}
}

type ParticipantExport struct {
	Session     *Session            `json:"session"`
	Condition   *Condition          `json:"condition,omitempty"`
	Submissions []*SubmissionRecord `json:"submissions"`
	Transcript  []ChatTurn          `json:"transcript"`
	Scrapbook   []Scrap             `json:"scrapbook"`
}

func (s *ParticipantDataService) Export(participantID, actor string) (*ParticipantExport, error) {
	if participantID == "" {
		return nil, NewInvalidError("participant_id required")
	}
	sess, err := s.store.GetSession(participantID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, NewNotFoundError("not found")
	}
	cond, err := s.store.GetCondition(participantID)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.ListSubmissionsByParticipant(participantID)
	if err != nil {
		return nil, err
	}
	turns, err := s.store.ListChatTurns(participantID)
	if err != nil {
		return nil, err
	}
	scraps, err := s.store.ListScraps(participantID)
	if err != nil {
		return nil, err
	}
	s.store.AddAudit(AuditEntry{Time: time.Now(), Actor: actor, Action: "export_participant", Target: participantID})
	return &ParticipantExport{
		Session:     sess,
		Condition:   cond,
		Submissions: subs,
		Transcript:  turns,
		Scrapbook:   scraps,
	}, nil
}

func (s *ParticipantDataService) Delete(participantID, actor string) error {
	if participantID == "" {
		return NewInvalidError("participant_id required")
	}
	ok, err := s.store.DeleteParticipantData(participantID)
	if err != nil {
		return err
	}
	if !ok {
		return NewNotFoundError("not found")
	}
	s.store.AddAudit(AuditEntry{Time: time.Now(), Actor: actor, Action: "delete_participant", Target: participantID})
	return nil
}
