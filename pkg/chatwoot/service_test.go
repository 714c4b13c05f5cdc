package chatwoot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatbridge/pkg/message"
)

// fakeDesk is a minimal account-scoped Chatwoot API for tests. Handlers are
// keyed by "METHOD /path" relative to the account base.
type fakeDesk struct {
	t        *testing.T
	server   *httptest.Server
	handlers map[string]http.HandlerFunc
	calls    []string
}

func newFakeDesk(t *testing.T) *fakeDesk {
	t.Helper()

	desk := &fakeDesk{t: t, handlers: map[string]http.HandlerFunc{}}
	desk.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		desk.calls = append(desk.calls, key)
		if handler, ok := desk.handlers[key]; ok {
			handler(w, r)
			return
		}
		t.Errorf("unexpected request %s", key)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(desk.server.Close)
	return desk
}

func (d *fakeDesk) on(key string, status int, body any) {
	d.handlers[key] = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func (d *fakeDesk) called(key string) bool {
	for _, call := range d.calls {
		if call == key {
			return true
		}
	}
	return false
}

func (d *fakeDesk) service() *Service {
	client := NewClient(d.server.URL, 7, "token")
	d.t.Cleanup(client.Close)
	return NewService(client, nil)
}

const accountBase = "/api/v1/accounts/7"

func contactWithInbox(id, inboxID int, sourceID string) map[string]any {
	return map[string]any{
		"id":   id,
		"name": "Bob",
		"contact_inboxes": []any{
			map[string]any{
				"source_id": sourceID,
				"inbox":     map[string]any{"id": inboxID},
			},
		},
	}
}

func TestEnsureContactPrefersAttributeFilter(t *testing.T) {
	desk := newFakeDesk(t)
	desk.on("POST "+accountBase+"/contacts/filter", http.StatusOK, map[string]any{
		"payload": []any{contactWithInbox(31, 5, "src-31")},
	})
	desk.on("PATCH "+accountBase+"/contacts/31", http.StatusOK, map[string]any{})

	ensured, err := desk.service().EnsureContact(context.Background(), EnsureParams{
		InboxID:          5,
		SearchKey:        "12345",
		CustomAttributes: map[string]any{"vk_user_id": "12345"},
	})
	if err != nil {
		t.Fatalf("EnsureContact: %v", err)
	}

	if ensured.ID != 31 || ensured.SourceID != "src-31" {
		t.Fatalf("ensured = %+v, want id 31 source src-31", ensured)
	}
	if desk.called("GET " + accountBase + "/contacts/search") {
		t.Fatal("search fallback should not run after a filter hit")
	}
	if !desk.called("PATCH " + accountBase + "/contacts/31") {
		t.Fatal("found contact should get an attribute refresh")
	}
}

func TestEnsureContactCreatesWhenNotFound(t *testing.T) {
	desk := newFakeDesk(t)
	desk.on("GET "+accountBase+"/contacts/search", http.StatusOK, map[string]any{"payload": []any{}})
	desk.on("POST "+accountBase+"/contacts", http.StatusOK, map[string]any{
		"payload": map[string]any{"contact": contactWithInbox(44, 5, "src-44")},
	})

	ensured, err := desk.service().EnsureContact(context.Background(), EnsureParams{
		InboxID:   5,
		SearchKey: "79991234567",
		Name:      "Bob",
		Phone:     "79991234567",
	})
	if err != nil {
		t.Fatalf("EnsureContact: %v", err)
	}

	if ensured.ID != 44 || ensured.SourceID != "src-44" {
		t.Fatalf("ensured = %+v, want id 44 source src-44", ensured)
	}
}

func TestEnsureContactFallsBackToSearchKeyAsSourceID(t *testing.T) {
	desk := newFakeDesk(t)
	desk.on("GET "+accountBase+"/contacts/search", http.StatusOK, map[string]any{
		"payload": []any{map[string]any{"id": 9, "name": "Bob"}},
	})
	desk.on("PATCH "+accountBase+"/contacts/9", http.StatusOK, map[string]any{})

	ensured, err := desk.service().EnsureContact(context.Background(), EnsureParams{
		InboxID:   5,
		SearchKey: "bob_the_dev",
	})
	if err != nil {
		t.Fatalf("EnsureContact: %v", err)
	}
	if ensured.SourceID != "bob_the_dev" {
		t.Fatalf("source_id = %q, want search key fallback", ensured.SourceID)
	}
}

func TestEnsureContactFailsWithoutID(t *testing.T) {
	desk := newFakeDesk(t)
	desk.on("GET "+accountBase+"/contacts/search", http.StatusOK, map[string]any{"payload": []any{}})
	desk.on("POST "+accountBase+"/contacts", http.StatusOK, map[string]any{"payload": map[string]any{}})

	if _, err := desk.service().EnsureContact(context.Background(), EnsureParams{
		InboxID:   5,
		SearchKey: "nobody",
	}); err == nil {
		t.Fatal("expected error when upsert yields no contact id")
	}
}

func TestEnsureConversationReusesOpenBySourceID(t *testing.T) {
	desk := newFakeDesk(t)
	desk.on("GET "+accountBase+"/contacts/31/conversations", http.StatusOK, map[string]any{
		"payload": []any{
			map[string]any{
				"id":     100,
				"status": "resolved",
			},
			map[string]any{
				"id":     101,
				"status": "open",
				"last_non_activity_message": map[string]any{
					"conversation": map[string]any{
						"contact_inbox": map[string]any{"source_id": "src-31"},
					},
				},
			},
		},
	})

	convID, err := desk.service().EnsureConversation(context.Background(), 5, 31, "src-31")
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	if convID != 101 {
		t.Fatalf("conversation id = %d, want reuse of 101", convID)
	}
	if desk.called("POST " + accountBase + "/conversations") {
		t.Fatal("reuse should not create a conversation")
	}
}

func TestEnsureConversationCreatesWhenNoMatch(t *testing.T) {
	desk := newFakeDesk(t)
	desk.on("GET "+accountBase+"/contacts/31/conversations", http.StatusOK, map[string]any{
		"payload": []any{},
	})
	desk.on("POST "+accountBase+"/conversations", http.StatusOK, map[string]any{"id": 202})

	convID, err := desk.service().EnsureConversation(context.Background(), 5, 31, "src-31")
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	if convID != 202 {
		t.Fatalf("conversation id = %d, want 202", convID)
	}
}

func TestCreateMessageMapsDirection(t *testing.T) {
	desk := newFakeDesk(t)

	var gotType string
	desk.handlers["POST "+accountBase+"/conversations/202/messages"] = func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotType, _ = body["message_type"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 303})
	}

	msgID, err := desk.service().CreateMessage(context.Background(), 202, "hello", "incoming")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if msgID != 303 {
		t.Fatalf("message id = %d, want 303", msgID)
	}
	if gotType != "incoming" {
		t.Fatalf("message_type = %q, want incoming", gotType)
	}
}

func TestSourceIDForInbox(t *testing.T) {
	contact := message.Document(contactWithInbox(1, 5, "src-a"))
	contact["contact_inboxes"] = append(contact["contact_inboxes"].([]any), map[string]any{
		"source_id": "src-b",
		"inbox":     map[string]any{"id": 6},
	})

	if sid := sourceIDForInbox(contact, 6); sid != "src-b" {
		t.Fatalf("source id = %q, want src-b", sid)
	}
	if sid := sourceIDForInbox(contact, 99); sid != "" {
		t.Fatalf("source id = %q, want empty for unknown inbox", sid)
	}
	if sid := sourceIDForInbox(message.Document{}, 5); sid != "" {
		t.Fatalf("source id = %q, want empty without contact_inboxes", sid)
	}
}

func TestDigIntAcceptsNumbersAndStrings(t *testing.T) {
	doc := message.Document{
		"float":  float64(42),
		"string": "17",
		"junk":   "not-a-number",
	}

	if got := digInt(doc, "float"); got != 42 {
		t.Fatalf("digInt float = %d, want 42", got)
	}
	if got := digInt(doc, "string"); got != 17 {
		t.Fatalf("digInt string = %d, want 17", got)
	}
	if got := digInt(doc, "junk"); got != 0 {
		t.Fatalf("digInt junk = %d, want 0", got)
	}
	if got := digInt(doc, "missing"); got != 0 {
		t.Fatalf("digInt missing = %d, want 0", got)
	}
}
