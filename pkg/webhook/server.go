// Package webhook is the HTTP boundary of the bridge: it verifies webhook
// path ids and secrets, injects the resolved channel into support-desk
// payload metadata, and publishes raw documents onto the event bus.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatbridge/pkg/bus"
	"chatbridge/pkg/config"
	"chatbridge/pkg/message"
)

const headerWasenderSignature = "X-Webhook-Signature"

// Server receives provider webhooks and forwards them to bus topics. It
// performs transport-level checks only; all routing decisions live behind
// the bus.
type Server struct {
	cfg      *config.Config
	events   *bus.EventBus
	log      *slog.Logger
	channels map[string]message.Channel
}

// NewServer constructs a webhook server over cfg and events.
func NewServer(cfg *config.Config, events *bus.EventBus, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		events:   events,
		log:      log.With("component", "webhook"),
		channels: cfg.Chatwoot.ChannelByWebhookID(),
	}
}

// Handler builds the HTTP route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /wasender/webhook/{id}", s.handleWasender)
	mux.HandleFunc("POST /chatwoot/webhook/{id}", s.handleChatwoot)
	mux.HandleFunc("POST /vk/callback/{id}", s.handleVKCallback)
	return mux
}

// Run serves webhooks until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Server.Host + ":" + strconv.Itoa(s.cfg.Server.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Webhook server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start webhook server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	channels := make([]string, 0, len(s.channels))
	for _, ch := range s.channels {
		channels = append(channels, ch.String())
	}

	// Non-sensitive fields only.
	respondJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"chatwoot": map[string]any{
			"account_id":          s.cfg.Chatwoot.AccountID,
			"base_url":            s.cfg.Chatwoot.BaseURL,
			"channels_configured": channels,
		},
		"wasender": map[string]any{"enabled": s.cfg.Channels.Wasender.Enabled()},
		"telegram": map[string]any{"enabled": s.cfg.Channels.Telegram.Enabled()},
		"vk": map[string]any{
			"enabled":  s.cfg.Channels.VK.Enabled(),
			"group_id": s.cfg.Channels.VK.GroupID,
		},
	})
}

// handleWasender verifies the path id and shared-secret header, then splits
// the messages.upsert event by echo flag onto the incoming or outgoing
// topic.
func (s *Server) handleWasender(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") != s.cfg.Channels.Wasender.WebhookID {
		respondError(w, http.StatusForbidden, "invalid webhook id")
		return
	}
	if r.Header.Get(headerWasenderSignature) != s.cfg.Channels.Wasender.WebhookSecret {
		respondError(w, http.StatusForbidden, "invalid signature")
		return
	}

	payload, err := decodeDocument(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	event := payload.DigString("event")
	s.log.Info("Wasender webhook accepted", "event", event)

	if event != "messages.upsert" {
		s.log.Info("Ignored Wasender event", "event", event)
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	fromMe, ok := payload.Dig("data", "messages", "key", "fromMe")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid upsert format")
		return
	}

	topic := bus.TopicWasenderIncoming
	if fromMe == true {
		topic = bus.TopicWasenderOutgoing
	}
	s.events.Publish(r.Context(), topic, payload)

	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleChatwoot resolves the channel from the per-channel webhook id and
// injects it into conversation.meta before publishing. The router trusts
// this field completely.
func (s *Server) handleChatwoot(w http.ResponseWriter, r *http.Request) {
	webhookID := r.PathValue("id")
	ch, known := s.channels[webhookID]
	if !known {
		respondError(w, http.StatusForbidden, "unknown webhook id")
		return
	}

	payload, err := decodeDocument(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	injectChannel(payload, ch)

	event := payload.DigString("event")
	messageType := payload.DigString("message_type")
	s.log.Info("Chatwoot webhook accepted", "event", event, "message_type", messageType, "channel", ch)

	switch {
	case event != "message_created":
		s.log.Info("Ignored Chatwoot event", "event", event)
	case messageType == "incoming":
		s.events.Publish(r.Context(), bus.TopicChatwootIncoming, payload)
	case messageType == "outgoing":
		s.events.Publish(r.Context(), bus.TopicChatwootOutgoing, payload)
	default:
		s.log.Warn("Unknown Chatwoot message type", "message_type", messageType)
	}

	respondJSON(w, http.StatusOK, map[string]any{"status": "received"})
}

// handleVKCallback implements the VK Callback API contract: confirmation
// requests echo the confirmation token, message_new events are verified
// against the callback secret and group id, and every acknowledged event is
// answered with the literal "ok" VK requires.
func (s *Server) handleVKCallback(w http.ResponseWriter, r *http.Request) {
	vk := s.cfg.Channels.VK
	if !vk.Enabled() {
		respondError(w, http.StatusServiceUnavailable, "vk adapter is not configured")
		return
	}
	if r.PathValue("id") != vk.CallbackID {
		respondError(w, http.StatusForbidden, "invalid callback id")
		return
	}

	payload, err := decodeDocument(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	eventType := payload.DigString("type")
	groupID := payload.DigStringable("group_id")
	s.log.Info("VK callback received", "type", eventType, "group_id", groupID)

	if eventType == "confirmation" {
		if groupID != strconv.Itoa(vk.GroupID) {
			respondError(w, http.StatusBadRequest, "invalid group_id")
			return
		}
		s.events.Publish(r.Context(), bus.TopicVKConfirmation, message.Document{"group_id": vk.GroupID})
		respondText(w, http.StatusOK, vk.Confirmation)
		return
	}

	if payload.DigString("secret") != vk.Secret {
		respondError(w, http.StatusForbidden, "invalid secret")
		return
	}
	if groupID != strconv.Itoa(vk.GroupID) {
		respondError(w, http.StatusBadRequest, "invalid group_id")
		return
	}

	if eventType == "message_new" {
		msg := payload.DigDocument("object", "message")
		if msg == nil {
			respondError(w, http.StatusBadRequest, "invalid message_new payload")
			return
		}
		s.events.Publish(r.Context(), bus.TopicVKIncoming, message.Document{
			"event":   "message_new",
			"message": map[string]any(msg),
			"raw":     map[string]any(payload),
		})
	} else {
		// Acknowledge anyway so VK does not retry.
		s.log.Info("Ignored VK event type", "type", eventType)
	}

	respondText(w, http.StatusOK, "ok")
}

// injectChannel writes the resolved channel into conversation.meta.channel,
// creating the nesting when the payload lacks it.
func injectChannel(payload message.Document, ch message.Channel) {
	conv, ok := payload["conversation"].(map[string]any)
	if !ok {
		conv = map[string]any{}
		payload["conversation"] = conv
	}
	meta, ok := conv["meta"].(map[string]any)
	if !ok {
		meta = map[string]any{}
		conv["meta"] = meta
	}
	meta["channel"] = ch.String()
}

func decodeDocument(r *http.Request) (message.Document, error) {
	var doc message.Document
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}
	// A JSON null decodes into a nil map without error.
	if doc == nil {
		return nil, errors.New("payload is not a JSON object")
	}
	return doc, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(strings.TrimSpace(body)))
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]any{"detail": detail})
}
