// Package chatwoot mirrors inbound channel messages into a Chatwoot-style
// support desk: contacts are upserted, conversations reused or created, and
// messages posted into the right inbox.
package chatwoot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatbridge/pkg/message"
)

const requestTimeout = 15 * time.Second

// Client is a lightweight HTTP client for the Chatwoot v1 API, limited to
// the endpoints the mirror needs.
type Client struct {
	accountBase string
	token       string
	http        *http.Client
}

// NewClient constructs a client scoped to one Chatwoot account.
func NewClient(baseURL string, accountID int, apiAccessToken string) *Client {
	return &Client{
		accountBase: fmt.Sprintf("%s/api/v1/accounts/%d", strings.TrimRight(baseURL, "/"), accountID),
		token:       apiAccessToken,
		http:        &http.Client{Timeout: requestTimeout},
	}
}

// SearchContacts searches contacts by name, identifier, email, or phone.
func (c *Client) SearchContacts(ctx context.Context, query string) (message.Document, error) {
	params := url.Values{}
	params.Set("q", query)
	return c.do(ctx, http.MethodGet, "/contacts/search?"+params.Encode(), nil)
}

// FilterContacts filters contacts by raw custom-attribute keys.
func (c *Client) FilterContacts(ctx context.Context, attrs map[string]any) (message.Document, error) {
	filters := make([]map[string]any, 0, len(attrs))
	for key, value := range attrs {
		filters = append(filters, map[string]any{
			"attribute_key":   key,
			"filter_operator": "equal_to",
			"values":          []string{fmt.Sprint(value)},
		})
	}
	return c.do(ctx, http.MethodPost, "/contacts/filter", map[string]any{"payload": filters})
}

// ContactParams carries the contact fields the mirror maintains.
type ContactParams struct {
	InboxID              int
	Name                 string
	PhoneNumber          string
	Email                string
	Identifier           string
	CustomAttributes     map[string]any
	AdditionalAttributes map[string]any
}

// CreateContact creates a contact in the inbox given by params.
func (c *Client) CreateContact(ctx context.Context, params ContactParams) (message.Document, error) {
	payload := map[string]any{"inbox_id": params.InboxID}
	applyContactFields(payload, params)
	return c.do(ctx, http.MethodPost, "/contacts", payload)
}

// UpdateContact patches contact fields and attributes.
func (c *Client) UpdateContact(ctx context.Context, contactID int, params ContactParams) (message.Document, error) {
	payload := map[string]any{}
	applyContactFields(payload, params)
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/contacts/%d", contactID), payload)
}

func applyContactFields(payload map[string]any, params ContactParams) {
	if params.Name != "" {
		payload["name"] = params.Name
	}
	if params.PhoneNumber != "" {
		phone := params.PhoneNumber
		if !strings.HasPrefix(phone, "+") {
			phone = "+" + phone
		}
		payload["phone_number"] = phone
	}
	if params.Email != "" {
		payload["email"] = params.Email
	}
	if params.Identifier != "" {
		payload["identifier"] = params.Identifier
	}
	if params.CustomAttributes != nil {
		payload["custom_attributes"] = params.CustomAttributes
	}
	if params.AdditionalAttributes != nil {
		payload["additional_attributes"] = params.AdditionalAttributes
	}
}

// ListConversations lists conversations for a contact.
func (c *Client) ListConversations(ctx context.Context, contactID int) (message.Document, error) {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("/contacts/%d/conversations", contactID), nil)
}

// CreateConversation creates a conversation bound to sourceID in the inbox.
func (c *Client) CreateConversation(ctx context.Context, inboxID int, sourceID string, contactID int) (message.Document, error) {
	payload := map[string]any{"inbox_id": inboxID, "source_id": sourceID}
	if contactID != 0 {
		payload["contact_id"] = contactID
	}
	return c.do(ctx, http.MethodPost, "/conversations", payload)
}

// CreateMessage posts a message into a conversation with the given
// message_type ("incoming" or "outgoing").
func (c *Client) CreateMessage(ctx context.Context, conversationID int, content, messageType string) (message.Document, error) {
	payload := map[string]any{"content": content, "message_type": messageType}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/conversations/%d/messages", conversationID), payload)
}

// Close releases pooled transport connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, method, path string, body any) (message.Document, error) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.accountBase+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api_access_token", c.token)
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
	}

	var doc message.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return doc, nil
}
