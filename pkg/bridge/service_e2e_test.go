package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chatbridge/pkg/channel"
	"chatbridge/pkg/config"
	"chatbridge/pkg/message"
)

type sentText struct {
	recipient string
	text      string
}

// fakeAdapter stands in for a provider integration at the registry boundary.
type fakeAdapter struct {
	channel.TextOnly

	name message.Channel

	mu    sync.Mutex
	sends []sentText
}

func (f *fakeAdapter) Name() message.Channel       { return f.name }
func (f *fakeAdapter) OnMessage(channel.Handler)   {}
func (f *fakeAdapter) Start(context.Context) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error  { return nil }

func (f *fakeAdapter) SendText(_ context.Context, recipientID string, content message.TextContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentText{recipient: recipientID, text: content.Text})
	return nil
}

func (f *fakeAdapter) sent() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.sends...)
}

func baseConfig() *config.Config {
	return &config.Config{
		Chatwoot: config.ChatwootConfig{
			BaseURL:        "https://desk.example.com",
			AccountID:      7,
			APIAccessToken: "token",
			WebhookIDs: config.ChatwootWebhookIDs{
				WhatsApp: "cw-wa",
				Telegram: "cw-tg",
				VK:       "cw-vk",
			},
		},
	}
}

func postJSON(t *testing.T, handler http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// TestOutgoingAgentReplyReachesChannel drives the full outbound path: a
// support-desk message_created webhook enters over HTTP, crosses the bus,
// passes the routing gates, resolves a recipient from contact attributes,
// and lands on the channel adapter.
func TestOutgoingAgentReplyReachesChannel(t *testing.T) {
	svc, err := NewService(baseConfig(), nil)
	require.NoError(t, err)

	fake := &fakeAdapter{name: message.ChannelTelegram}
	require.NoError(t, svc.Registry().Register(fake))

	payload := `{
		"event": "message_created",
		"message_type": "outgoing",
		"private": false,
		"content": "Hi",
		"conversation": {
			"meta": {
				"sender": {
					"custom_attributes": {"telegram_username": "bob"}
				}
			}
		}
	}`

	rec := postJSON(t, svc.Handler(), "/chatwoot/webhook/cw-tg", payload, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	sends := fake.sent()
	require.Len(t, sends, 1)
	require.Equal(t, "bob", sends[0].recipient)
	require.Equal(t, "Hi", sends[0].text)
}

// TestOutgoingGatesFilterNoise verifies that private notes, incoming echoes,
// and contacts without any usable address never reach the adapter.
func TestOutgoingGatesFilterNoise(t *testing.T) {
	svc, err := NewService(baseConfig(), nil)
	require.NoError(t, err)

	fake := &fakeAdapter{name: message.ChannelTelegram}
	require.NoError(t, svc.Registry().Register(fake))

	bodies := []string{
		`{"event":"message_created","message_type":"outgoing","private":true,"content":"note","conversation":{"meta":{"sender":{"custom_attributes":{"telegram_username":"bob"}}}}}`,
		`{"event":"message_created","message_type":"incoming","content":"Hi","conversation":{"meta":{"sender":{"custom_attributes":{"telegram_username":"bob"}}}}}`,
		`{"event":"conversation_updated","message_type":"outgoing","content":"Hi","conversation":{"meta":{"sender":{"custom_attributes":{"telegram_username":"bob"}}}}}`,
		`{"event":"message_created","message_type":"outgoing","content":"Hi","conversation":{"meta":{"sender":{"custom_attributes":{}}}}}`,
	}
	for _, body := range bodies {
		rec := postJSON(t, svc.Handler(), "/chatwoot/webhook/cw-tg", body, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Empty(t, fake.sent())
}

// TestInboundWhatsAppMirrorsToDesk drives the full inbound path: a Wasender
// webhook enters over HTTP, the adapter normalizes it, and the mirror upserts
// a contact, opens a conversation, and posts the text into the desk.
func TestInboundWhatsAppMirrorsToDesk(t *testing.T) {
	var mu sync.Mutex
	deskCalls := map[string]int{}
	var createdMessage map[string]any

	desk := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api/v1/accounts/7")
		mu.Lock()
		deskCalls[key]++
		mu.Unlock()

		switch key {
		case "GET /contacts/search":
			_ = json.NewEncoder(w).Encode(map[string]any{"payload": []any{}})
		case "POST /contacts":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"payload": map[string]any{"contact": map[string]any{
					"id": 44,
					"contact_inboxes": []any{map[string]any{
						"source_id": "src-44",
						"inbox":     map[string]any{"id": 5},
					}},
				}},
			})
		case "GET /contacts/44/conversations":
			_ = json.NewEncoder(w).Encode(map[string]any{"payload": []any{}})
		case "POST /conversations":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 202})
		case "POST /conversations/202/messages":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			createdMessage = body
			mu.Unlock()
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 303})
		default:
			t.Errorf("unexpected desk request %s", key)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer desk.Close()

	cfg := baseConfig()
	cfg.Chatwoot.BaseURL = desk.URL
	cfg.Channels.Wasender = config.WasenderConfig{
		WebhookID:     "wa-hook",
		WebhookSecret: "wa-secret",
		APIKey:        "wa-key",
		BaseURL:       "https://example.invalid/api",
		InboxID:       5,
	}

	svc, err := NewService(cfg, nil)
	require.NoError(t, err)

	adapter, ok := svc.Registry().Get(message.ChannelWhatsApp)
	require.True(t, ok)

	ctx := context.Background()
	require.NoError(t, adapter.Start(ctx))
	defer func() { _ = adapter.Stop(ctx) }()

	payload := `{
		"event": "messages.upsert",
		"data": {
			"messages": {
				"key": {"fromMe": false, "remoteJid": "79991234567@s.whatsapp.net", "id": "wamid-1"},
				"pushName": "Bob",
				"message": {"conversation": "hello support"}
			}
		}
	}`

	rec := postJSON(t, svc.Handler(), "/wasender/webhook/wa-hook", payload,
		map[string]string{"X-Webhook-Signature": "wa-secret"})
	require.Equal(t, http.StatusOK, rec.Code)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, deskCalls["POST /conversations/202/messages"])
	require.Equal(t, "hello support", createdMessage["content"])
	require.Equal(t, "incoming", createdMessage["message_type"])
}

// TestServiceBuildsOnlyConfiguredChannels checks the registry population.
func TestServiceBuildsOnlyConfiguredChannels(t *testing.T) {
	cfg := baseConfig()
	cfg.Channels.VK = config.VKConfig{
		CallbackID:   "vk-cb",
		GroupID:      4242,
		AccessToken:  "vk-token",
		Secret:       "vk-secret",
		Confirmation: "confirm-me",
	}

	svc, err := NewService(cfg, nil)
	require.NoError(t, err)
	require.Equal(t, []message.Channel{message.ChannelVK}, svc.Registry().Channels())
}
