package api

import (
	"time"

	"github.com/searchlab/studyflow/internal/services"
)

type taskStoreAdapter struct {
	store Store
}

func newTaskStoreAdapter(store Store) services.TaskStore {
	return &taskStoreAdapter{store: store}
}

func (a *taskStoreAdapter) GetCondition(pid string) (*services.Condition, error) {
	return toServiceCondition(a.store.GetCondition(pid)), nil
}

func (a *taskStoreAdapter) GetTaskStart(pid string) (time.Time, bool, error) {
	at, ok := a.store.GetTaskStart(pid)
	return at, ok, nil
}

func (a *taskStoreAdapter) SetTaskStart(pid string, at time.Time) error {
	a.store.SetTaskStart(pid, at)
	return nil
}

func (a *taskStoreAdapter) AddChatTurn(pid string, t services.ChatTurn) error {
	a.store.AddChatTurn(pid, ChatTurn{Query: t.Query, Text: t.Text, CreatedAt: t.CreatedAt})
	return nil
}

func (a *taskStoreAdapter) ListChatTurns(pid string) ([]services.ChatTurn, error) {
	turns := a.store.ListChatTurns(pid)
	out := make([]services.ChatTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, services.ChatTurn{Query: t.Query, Text: t.Text, CreatedAt: t.CreatedAt})
	}
	return out, nil
}

func toStoreScrap(sc services.Scrap) Scrap {
	return Scrap{ID: sc.ID, Title: sc.Title, Snippet: sc.Snippet, Link: sc.Link, DisplayLink: sc.DisplayLink, Comment: sc.Comment, CreatedAt: sc.CreatedAt}
}

func toServiceScrap(sc Scrap) services.Scrap {
	return services.Scrap{ID: sc.ID, Title: sc.Title, Snippet: sc.Snippet, Link: sc.Link, DisplayLink: sc.DisplayLink, Comment: sc.Comment, CreatedAt: sc.CreatedAt}
}

func (a *taskStoreAdapter) AddScrap(pid string, sc services.Scrap) error {
	a.store.AddScrap(pid, toStoreScrap(sc))
	return nil
}

func (a *taskStoreAdapter) ListScraps(pid string) ([]services.Scrap, error) {
	scraps := a.store.ListScraps(pid)
	out := make([]services.Scrap, 0, len(scraps))
	for _, sc := range scraps {
		out = append(out, toServiceScrap(sc))
	}
	return out, nil
}

func (a *taskStoreAdapter) SetScrapComment(pid, scrapID, comment string) error {
	if !a.store.SetScrapComment(pid, scrapID, comment) {
		return services.NewNotFoundError("scrap not found")
	}
	return nil
}

func (a *taskStoreAdapter) RemoveScrap(pid, scrapID string) error {
	a.store.RemoveScrap(pid, scrapID)
	return nil
}

var _ services.TaskStore = (*taskStoreAdapter)(nil)
