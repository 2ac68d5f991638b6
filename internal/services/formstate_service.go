package services

import (
	"encoding/json"
	"strings"
)

// FormStateService keeps per-page answer state with write-through to the
// cache port, so a reload restores exactly the last-entered values. The
// cache entry for a page is cleared after a successful remote submission.
type FormStateService struct {
	cache Cache
}

func NewFormStateService(cache Cache) *FormStateService {
	return &FormStateService{cache: cache}
}

func pageStateKey(page string) string { return "page:" + page }

// Get returns the cached answer set for a page, or an empty map.
func (s *FormStateService) Get(participantID, page string) (map[string]any, error) {
	if strings.TrimSpace(participantID) == "" || strings.TrimSpace(page) == "" {
		return nil, NewInvalidError("participant_id and page required")
	}
	raw, ok, err := s.cache.CacheGet(participantID, pageStateKey(page))
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		// A corrupt cache entry is dropped rather than blocking the page.
		_ = s.cache.CacheRemove(participantID, pageStateKey(page))
		return map[string]any{}, nil
	}
	return out, nil
}

// SetValue updates one answer and writes the whole page state back through.
func (s *FormStateService) SetValue(participantID, page, key string, value any) (map[string]any, error) {
	if strings.TrimSpace(key) == "" {
		return nil, NewInvalidError("key required")
	}
	state, err := s.Get(participantID, page)
	if err != nil {
		return nil, err
	}
	state[key] = value
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, NewInvalidError("value not serializable: " + err.Error())
	}
	if err := s.cache.CacheSet(participantID, pageStateKey(page), string(raw)); err != nil {
		return nil, err
	}
	return state, nil
}

// Clear removes the cached state for a page.
func (s *FormStateService) Clear(participantID, page string) error {
	return s.cache.CacheRemove(participantID, pageStateKey(page))
}

// Answered reports whether a value counts as an answer: not nil, not an
// empty string, and not an empty list.
func Answered(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case []any:
		return len(val) > 0
	case []string:
		return len(val) > 0
	default:
		return true
	}
}

// MissingKeys returns the required keys without an answer, in order.
func MissingKeys(required []string, answers map[string]any) []string {
	missing := []string{}
	for _, key := range required {
		if !Answered(answers[key]) {
			missing = append(missing, key)
		}
	}
	return missing
}
