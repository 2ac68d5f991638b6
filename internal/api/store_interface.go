package api

import "time"

type Store interface {
	AddSession(s *Session)
	GetSession(id string) *Session
	SetParticipated(id string) bool

	SetCondition(c *Condition)
	GetCondition(participantID string) *Condition

	CacheGet(participantID, key string) (string, bool)
	CacheSet(participantID, key, value string)
	CacheRemove(participantID, key string)

	IsPageComplete(participantID, page string) bool
	MarkPageComplete(participantID, page string)

	GetTaskStart(participantID string) (time.Time, bool)
	SetTaskStart(participantID string, at time.Time)

	AddChatTurn(participantID string, t ChatTurn)
	ListChatTurns(participantID string) []ChatTurn

	AddScrap(participantID string, sc Scrap)
	ListScraps(participantID string) []Scrap
	SetScrapComment(participantID, scrapID, comment string) bool
	RemoveScrap(participantID, scrapID string)

	AddSubmission(rec *SubmissionRecord)
	ListSubmissions() []*SubmissionRecord
	ListSubmissionsByParticipant(participantID string) []*SubmissionRecord

	AddResearcher(r *Researcher)
	FindResearcherByEmail(email string) *Researcher

	DeleteParticipantData(participantID string) bool

	AddAudit(e AuditEntry)
	ListAudit() []AuditEntry
}

var _ Store = (*memoryStore)(nil)
