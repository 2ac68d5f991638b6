package api

import "github.com/searchlab/studyflow/internal/services"

type authStoreAdapter struct {
	store Store
}

func newAuthStoreAdapter(store Store) services.AuthStore {
	return &authStoreAdapter{store: store}
}

func (a *authStoreAdapter) FindResearcherByEmail(email string) (*services.Researcher, error) {
	r := a.store.FindResearcherByEmail(email)
	if r == nil {
		return nil, nil
	}
	return &services.Researcher{ID: r.ID, Email: r.Email, PassHash: r.PassHash, CreatedAt: r.CreatedAt}, nil
}

func (a *authStoreAdapter) AddResearcher(r *services.Researcher) error {
	if r == nil {
		return services.NewInvalidError("researcher required")
	}
	a.store.AddResearcher(&Researcher{ID: r.ID, Email: r.Email, PassHash: r.PassHash, CreatedAt: r.CreatedAt})
	return nil
}

var _ services.AuthStore = (*authStoreAdapter)(nil)
