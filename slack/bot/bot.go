package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// Acker acknowledges socket mode envelopes.
type Acker interface {
	Ack(req socketmode.Request, payload ...any)
}

// Bot answers chat commands over a Slack socket mode connection.
//
// Required bot token scopes: app_mentions:read, chat:write, im:history,
// reactions:write, commands (for the /reclaim slash command).
type Bot struct {
	log       *slog.Logger
	cfg       Config
	client    *Client
	processor *Processor
}

func New(cfg Config) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := NewClient(cfg.BotToken, cfg.AppToken, cfg.Logger)
	return newBot(cfg, client), nil
}

func newBot(cfg Config, client *Client) *Bot {
	return &Bot{
		log:    cfg.Logger,
		cfg:    cfg,
		client: client,
		processor: NewProcessor(ProcessorConfig{
			Logger:       cfg.Logger,
			Poster:       client,
			Reactor:      client,
			Reclaimer:    cfg.Reclaimer,
			Cycles:       cfg.Cycles,
			ChannelID:    cfg.ChannelID,
			RespondedTTL: cfg.RespondedTTL,
		}),
	}
}

// NotifyCycle posts a scheduled cycle summary to the configured channel.
func (b *Bot) NotifyCycle(ctx context.Context, cycle reclaimer.CycleResult) {
	b.processor.NotifyCycle(ctx, cycle)
}

// Run connects over socket mode and handles events until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	if _, err := b.client.Initialize(ctx); err != nil {
		return fmt.Errorf("slack auth test failed: %w", err)
	}
	b.processor.StartCleanup(ctx)

	sm := socketmode.New(b.client.API())
	errCh := make(chan error, 1)
	go func() {
		errCh <- sm.RunContext(ctx)
	}()

	b.log.Info("slack: bot running in socket mode", "bot_user_id", b.client.BotUserID())
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("socket mode connection failed: %w", err)
		case evt, ok := <-sm.Events:
			if !ok {
				return nil
			}
			b.handleEvent(ctx, sm, evt)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, acker Acker, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		b.log.Debug("slack: connecting")
	case socketmode.EventTypeConnected:
		b.log.Info("slack: connected")
	case socketmode.EventTypeConnectionError:
		b.log.Warn("slack: connection error, retrying")
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			acker.Ack(*evt.Request)
		}
		EventsReceivedTotal.WithLabelValues(apiEvent.Type, apiEvent.InnerEvent.Type).Inc()
		if msg, ok := b.messageFromEvent(apiEvent); ok {
			go b.processor.HandleMessage(ctx, msg)
		}
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok {
			return
		}
		if evt.Request != nil {
			acker.Ack(*evt.Request, map[string]any{"text": "Working on `" + cmd.Text + "`..."})
		}
		EventsReceivedTotal.WithLabelValues("slash_command", cmd.Command).Inc()
		go b.processor.HandleMessage(ctx, Message{
			Key:     cmd.TriggerID,
			Channel: cmd.ChannelID,
			User:    cmd.UserID,
			Text:    cmd.Text,
		})
	}
}

// messageFromEvent extracts a command addressed to the bot: any app mention,
// or a direct message from a human.
func (b *Bot) messageFromEvent(ev slackevents.EventsAPIEvent) (Message, bool) {
	if ev.Type != slackevents.CallbackEvent {
		return Message{}, false
	}
	switch inner := ev.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if inner.BotID != "" {
			return Message{}, false
		}
		return Message{
			Key:      inner.Channel + ":" + inner.TimeStamp,
			Channel:  inner.Channel,
			User:     inner.User,
			Text:     b.client.RemoveBotMention(inner.Text),
			TS:       inner.TimeStamp,
			ThreadTS: inner.ThreadTimeStamp,
		}, true
	case *slackevents.MessageEvent:
		if inner.ChannelType != "im" || inner.BotID != "" || inner.SubType != "" || inner.User == b.client.BotUserID() {
			return Message{}, false
		}
		return Message{
			Key:      inner.Channel + ":" + inner.TimeStamp,
			Channel:  inner.Channel,
			User:     inner.User,
			Text:     b.client.RemoveBotMention(inner.Text),
			TS:       inner.TimeStamp,
			ThreadTS: inner.ThreadTimeStamp,
		}, true
	}
	return Message{}, false
}
