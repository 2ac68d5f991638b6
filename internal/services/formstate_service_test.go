package services

import "testing"

type stubCache struct {
	data map[string]string
}

func newStubCache() *stubCache { return &stubCache{data: map[string]string{}} }

func (c *stubCache) key(pid, k string) string { return pid + "|" + k }

func (c *stubCache) CacheGet(pid, k string) (string, bool, error) {
	v, ok := c.data[c.key(pid, k)]
	return v, ok, nil
}

func (c *stubCache) CacheSet(pid, k, v string) error {
	c.data[c.key(pid, k)] = v
	return nil
}

func (c *stubCache) CacheRemove(pid, k string) error {
	delete(c.data, c.key(pid, k))
	return nil
}

func TestFormStateRoundTrip(t *testing.T) {
	svc := NewFormStateService(newStubCache())

	if _, err := svc.SetValue("P1", "presurvey", "How familiar are you with the topic?", 3); err != nil {
		t.Fatalf("SetValue error: %v", err)
	}
	if _, err := svc.SetValue("P1", "presurvey", "free_text", "some notes"); err != nil {
		t.Fatalf("SetValue error: %v", err)
	}

	// A "reload" reads back exactly what was entered.
	state, err := svc.Get("P1", "presurvey")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if v, ok := state["How familiar are you with the topic?"].(float64); !ok || v != 3 {
		t.Fatalf("numeric answer lost in round trip: %+v", state)
	}
	if state["free_text"] != "some notes" {
		t.Fatalf("text answer lost in round trip: %+v", state)
	}

	if err := svc.Clear("P1", "presurvey"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	state, err = svc.Get("P1", "presurvey")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if len(state) != 0 {
		t.Fatalf("expected empty state after clear, got %+v", state)
	}
}

func TestFormStateIsPageScoped(t *testing.T) {
	svc := NewFormStateService(newStubCache())
	if _, err := svc.SetValue("P1", "presurvey", "q", 1); err != nil {
		t.Fatalf("SetValue error: %v", err)
	}
	other, err := svc.Get("P1", "postsurvey")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("state leaked across pages: %+v", other)
	}
}

func TestFormStateCorruptEntryDropped(t *testing.T) {
	cache := newStubCache()
	cache.data["P1|page:presurvey"] = "{not json"
	svc := NewFormStateService(cache)
	state, err := svc.Get("P1", "presurvey")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if len(state) != 0 {
		t.Fatalf("corrupt entry should yield empty state")
	}
	if _, ok := cache.data["P1|page:presurvey"]; ok {
		t.Fatalf("corrupt entry should be removed")
	}
}

func TestAnsweredRules(t *testing.T) {
	if Answered(nil) {
		t.Fatalf("nil must not count as answered")
	}
	if Answered("") || Answered("   ") {
		t.Fatalf("empty string must not count as answered")
	}
	if Answered([]any{}) {
		t.Fatalf("empty list must not count as answered")
	}
	if !Answered(0) {
		t.Fatalf("numeric zero is a legitimate answer")
	}
	if !Answered([]any{"White"}) || !Answered("yes") {
		t.Fatalf("non-empty values must count as answered")
	}
}

func TestMissingKeysOrder(t *testing.T) {
	required := []string{"a", "b", "c"}
	answers := map[string]any{"b": 2}
	missing := MissingKeys(required, answers)
	if len(missing) != 2 || missing[0] != "a" || missing[1] != "c" {
		t.Fatalf("unexpected missing keys: %v", missing)
	}
}
