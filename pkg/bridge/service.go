// Package bridge wires the bus, adapters, router, support-desk mirror, and
// webhook server into one runnable service.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"chatbridge/pkg/bus"
	"chatbridge/pkg/channel"
	"chatbridge/pkg/channel/telegram"
	"chatbridge/pkg/channel/vk"
	"chatbridge/pkg/channel/whatsapp"
	"chatbridge/pkg/chatwoot"
	"chatbridge/pkg/config"
	"chatbridge/pkg/message"
	"chatbridge/pkg/router"
	"chatbridge/pkg/webhook"
)

const shutdownTimeout = 5 * time.Second

// Service owns the process-scoped event bus and adapter registry. Adapters
// are built for configured channels only and registered once at startup.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	events   *bus.EventBus
	registry *channel.Registry
	router   *router.Router
	server   *webhook.Server
	desk     *chatwoot.Client
}

// NewService builds and wires all components from cfg.
func NewService(cfg *config.Config, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = slog.Default()
	}

	events := bus.New(log)
	registry := channel.NewRegistry()
	rt := router.New(registry, log)

	svc := &Service{
		cfg:      cfg,
		log:      log.With("component", "bridge"),
		events:   events,
		registry: registry,
		router:   rt,
		server:   webhook.NewServer(cfg, events, log),
	}

	if err := svc.buildAdapters(); err != nil {
		return nil, err
	}

	svc.wireSupportDesk()

	// Adapter inbound → router; the router forwards to the registered
	// application handler.
	for _, adapter := range registry.Adapters() {
		adapter.OnMessage(func(ctx context.Context, msg message.UnifiedMessage) error {
			rt.HandleIncoming(ctx, msg)
			return nil
		})
	}

	// Support-desk outgoing events → outbound routing.
	events.Subscribe(bus.TopicChatwootOutgoing, func(ctx context.Context, payload message.Document) {
		rt.HandleOutgoing(ctx, payload)
	})

	return svc, nil
}

func (s *Service) buildAdapters() error {
	channels := s.cfg.Channels

	if channels.Wasender.Enabled() {
		adapter, err := whatsapp.NewAdapter(channels.Wasender, s.events, s.log)
		if err != nil {
			return fmt.Errorf("configure whatsapp channel: %w", err)
		}
		if err := s.registry.Register(adapter); err != nil {
			return err
		}
	}

	if channels.Telegram.Enabled() {
		adapter, err := telegram.NewAdapter(channels.Telegram, s.log)
		if err != nil {
			return fmt.Errorf("configure telegram channel: %w", err)
		}
		if err := s.registry.Register(adapter); err != nil {
			return err
		}
	}

	if channels.VK.Enabled() {
		adapter, err := vk.NewAdapter(channels.VK, s.events, s.log)
		if err != nil {
			return fmt.Errorf("configure vk channel: %w", err)
		}
		if err := s.registry.Register(adapter); err != nil {
			return err
		}
	}

	if len(s.registry.Channels()) == 0 {
		s.log.Warn("No channels configured, outgoing messages will be dropped")
	}
	return nil
}

// wireSupportDesk connects the inbound extension point to the support-desk
// mirror.
func (s *Service) wireSupportDesk() {
	s.desk = chatwoot.NewClient(s.cfg.Chatwoot.BaseURL, s.cfg.Chatwoot.AccountID, s.cfg.Chatwoot.APIAccessToken)
	deskService := chatwoot.NewService(s.desk, s.log)

	inboxes := chatwoot.Inboxes{
		message.ChannelWhatsApp: s.cfg.Channels.Wasender.InboxID,
		message.ChannelTelegram: s.cfg.Channels.Telegram.InboxID,
		message.ChannelVK:       s.cfg.Channels.VK.InboxID,
	}

	mirror := chatwoot.NewMirror(deskService, inboxes, s.log)
	s.router.OnIncoming(mirror.HandleIncoming)
}

// Registry exposes the adapter registry, mainly for tests and diagnostics.
func (s *Service) Registry() *channel.Registry {
	return s.registry
}

// Handler exposes the webhook route table for embedding and tests.
func (s *Service) Handler() http.Handler {
	return s.server.Handler()
}

// Run starts the adapters and serves webhooks until ctx is canceled. A
// channel that fails to start is logged and skipped; the bridge keeps
// serving the remaining channels.
func (s *Service) Run(ctx context.Context) error {
	started := make([]channel.Adapter, 0, len(s.registry.Channels()))
	for _, adapter := range s.registry.Adapters() {
		if err := adapter.Start(ctx); err != nil {
			s.log.Error("Failed to start channel adapter", "channel", adapter.Name(), "error", err)
			continue
		}
		started = append(started, adapter)
	}
	s.log.Info("Bridge started", "channels", s.registry.Channels())

	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		for _, adapter := range started {
			if err := adapter.Stop(stopCtx); err != nil {
				s.log.Error("Failed to stop channel adapter", "channel", adapter.Name(), "error", err)
			}
		}

		s.desk.Close()
		s.events.Close()
	}()

	return s.server.Run(ctx)
}
