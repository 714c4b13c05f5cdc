package chatwoot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"chatbridge/pkg/message"
)

// Service upserts contacts, ensures conversations, and posts messages
// through a Client.
type Service struct {
	client *Client
	log    *slog.Logger
}

// NewService constructs a service over client.
func NewService(client *Client, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		client: client,
		log:    log.With("component", "chatwoot"),
	}
}

// EnsuredContact is the outcome of an upsert: the contact id and the
// source id binding it to the inbox.
type EnsuredContact struct {
	ID       int
	SourceID string
}

// EnsureParams describes one contact upsert.
type EnsureParams struct {
	InboxID              int
	SearchKey            string
	Name                 string
	Phone                string
	Email                string
	CustomAttributes     map[string]any
	AdditionalAttributes map[string]any
}

// EnsureContact upserts a contact and returns its id and source id.
//
// Lookup is attribute-first: when the custom attributes carry a platform
// user id (vk_user_id, telegram_user_id), /contacts/filter is tried before
// the free-text /contacts/search fallback. Found contacts get their
// attributes refreshed best effort; missing contacts are created in the
// inbox.
func (s *Service) EnsureContact(ctx context.Context, params EnsureParams) (EnsuredContact, error) {
	var identifier string
	if vkUserID, ok := params.CustomAttributes["vk_user_id"]; ok {
		identifier = fmt.Sprintf("vk:%v", vkUserID)
	}

	contacts := s.lookupByAttributes(ctx, params.CustomAttributes)

	if len(contacts) == 0 {
		res, err := s.client.SearchContacts(ctx, params.SearchKey)
		if err != nil {
			s.log.Warn("Contact search failed", "search_key", params.SearchKey, "error", err)
		} else {
			contacts = digList(res, "payload")
		}
	}

	var contact message.Document
	if len(contacts) > 0 {
		contact = contacts[0]
		contactID := digInt(contact, "id")

		update := ContactParams{
			Identifier:           identifier,
			CustomAttributes:     params.CustomAttributes,
			AdditionalAttributes: params.AdditionalAttributes,
		}
		if params.Name != "" && contact.DigString("name") == "" {
			update.Name = params.Name
		}
		if _, err := s.client.UpdateContact(ctx, contactID, update); err != nil {
			s.log.Warn("Contact update skipped", "contact_id", contactID, "error", err)
		}
	} else {
		name := params.Name
		if name == "" {
			name = params.SearchKey
		}
		created, err := s.client.CreateContact(ctx, ContactParams{
			InboxID:              params.InboxID,
			Name:                 name,
			PhoneNumber:          params.Phone,
			Email:                params.Email,
			Identifier:           identifier,
			CustomAttributes:     params.CustomAttributes,
			AdditionalAttributes: params.AdditionalAttributes,
		})
		if err != nil {
			return EnsuredContact{}, fmt.Errorf("create contact: %w", err)
		}

		contact = created.DigDocument("payload", "contact")
		if contact == nil {
			contact = created.DigDocument("contact")
		}
		if contact == nil {
			contact = created
		}
	}

	sourceID := sourceIDForInbox(contact, params.InboxID)
	if sourceID == "" {
		sourceID = params.SearchKey
	}

	ensured := EnsuredContact{ID: digInt(contact, "id"), SourceID: sourceID}
	if ensured.ID == 0 {
		return EnsuredContact{}, fmt.Errorf("contact upsert returned no id for %q", params.SearchKey)
	}

	s.log.Info("Contact ensured", "contact_id", ensured.ID, "inbox_id", params.InboxID, "source_id", ensured.SourceID)
	return ensured, nil
}

func (s *Service) lookupByAttributes(ctx context.Context, custom map[string]any) []message.Document {
	lookup := make(map[string]any)
	for _, key := range []string{"vk_user_id", "telegram_user_id"} {
		if value, ok := custom[key]; ok {
			lookup[key] = value
		}
	}
	if len(lookup) == 0 {
		return nil
	}

	res, err := s.client.FilterContacts(ctx, lookup)
	if err != nil {
		s.log.Warn("Contact filter failed", "error", err)
		return nil
	}
	return digList(res, "payload")
}

// EnsureConversation reuses an open or pending conversation bound to
// sourceID, or creates one.
func (s *Service) EnsureConversation(ctx context.Context, inboxID, contactID int, sourceID string) (int, error) {
	res, err := s.client.ListConversations(ctx, contactID)
	if err != nil {
		return 0, fmt.Errorf("list conversations: %w", err)
	}

	for _, conv := range digList(res, "payload") {
		status := conv.DigString("status")
		if status != "open" && status != "pending" {
			continue
		}
		nested := conv.DigString("last_non_activity_message", "conversation", "contact_inbox", "source_id")
		if nested == sourceID {
			convID := digInt(conv, "id")
			s.log.Info("Reusing conversation", "conversation_id", convID)
			return convID, nil
		}
	}

	created, err := s.client.CreateConversation(ctx, inboxID, sourceID, contactID)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}

	convID := digInt(created, "id")
	if convID == 0 {
		convID = digInt(created.DigDocument("payload"), "id")
	}
	if convID == 0 {
		return 0, fmt.Errorf("conversation create returned no id for source %q", sourceID)
	}

	s.log.Info("Created conversation", "conversation_id", convID, "inbox_id", inboxID)
	return convID, nil
}

// CreateMessage posts content into a conversation with the given direction.
func (s *Service) CreateMessage(ctx context.Context, conversationID int, content, direction string) (int, error) {
	messageType := "outgoing"
	if direction == "incoming" {
		messageType = "incoming"
	}

	res, err := s.client.CreateMessage(ctx, conversationID, content, messageType)
	if err != nil {
		return 0, fmt.Errorf("create message: %w", err)
	}

	msgID := digInt(res, "id")
	if msgID == 0 {
		msgID = digInt(res.DigDocument("payload"), "id")
	}

	s.log.Info("Created message", "message_id", msgID, "message_type", messageType)
	return msgID, nil
}

// sourceIDForInbox finds the source id bound to inboxID in the contact's
// contact_inboxes list.
func sourceIDForInbox(contact message.Document, inboxID int) string {
	items, ok := contact.Dig("contact_inboxes")
	if !ok {
		return ""
	}
	list, ok := items.([]any)
	if !ok {
		return ""
	}

	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		doc := message.Document(entry)
		if digInt(doc, "inbox", "id") == inboxID {
			if sid := doc.DigString("source_id"); sid != "" {
				return sid
			}
		}
	}
	return ""
}

func digList(doc message.Document, path ...string) []message.Document {
	value, ok := doc.Dig(path...)
	if !ok {
		return nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	docs := make([]message.Document, 0, len(items))
	for _, item := range items {
		if entry, ok := item.(map[string]any); ok {
			docs = append(docs, message.Document(entry))
		}
	}
	return docs
}

func digInt(doc message.Document, path ...string) int {
	raw := doc.DigStringable(path...)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return value
}
