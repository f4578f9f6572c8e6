// Copyright 2024-2026 Aiku AI

package mailbot

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aiku/modmail/pkg/store"
)

// Community config keys read by the engine. The config collection is
// owned by external tooling; the bot never writes it.
const (
	cfgRelayCategory     = "modmailchannel"
	cfgTranscriptChannel = "transcriptchannel"
	cfgPriorityGroup     = "prioritymail"
	cfgTypingRelay       = "modmailtyping"
)

// Options tunes a Bot.
type Options struct {
	// HostedURL is the public base URL of the transcript viewer,
	// used in saved transcript pointers.
	HostedURL string
	Log       zerolog.Logger
}

// Bot is the mod-mail session engine. All inbound events funnel
// through its Handle methods; all side effects go through the Gateway.
type Bot struct {
	log      zerolog.Logger
	gw       Gateway
	store    *store.Store
	registry *Registry
	gate     *Gate
	insights *Aggregator

	hostedURL string
}

// New assembles the engine. Call Start before feeding it events.
func New(gw Gateway, st *store.Store, opts Options) *Bot {
	log := opts.Log.With().Str("component", "modmail").Logger()
	return &Bot{
		log:       log,
		gw:        gw,
		store:     st,
		registry:  NewRegistry(gw, st, log),
		gate:      &Gate{store: st},
		insights:  &Aggregator{store: st, log: log},
		hostedURL: opts.HostedURL,
	}
}

// Start loads persisted sessions into the in-memory index. It must
// complete before any event is processed.
func (b *Bot) Start(ctx context.Context) error {
	if err := b.registry.Load(ctx); err != nil {
		return err
	}
	b.log.Info().Int("active_sessions", b.registry.Len()).Msg("Modmail engine started")
	return nil
}

// Registry exposes the active-session index, mainly for tests and
// diagnostics.
func (b *Bot) Registry() *Registry {
	return b.registry
}

// communitySettings returns the settings map for one community, which
// may be nil when the community has no config document.
func (b *Bot) communitySettings(ctx context.Context, communityID string) map[string]string {
	cfgs, err := b.store.CommunityConfigs(ctx)
	if err != nil {
		b.log.Error().Err(err).Msg("Failed to load community configs")
		return nil
	}
	return cfgs[communityID]
}
