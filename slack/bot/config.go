package bot

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Config holds the Slack bot configuration. The bot runs in socket mode only,
// so both tokens are required.
type Config struct {
	Logger   *slog.Logger
	BotToken string
	AppToken string
	// ChannelID receives a summary after every scheduled cycle. Optional.
	ChannelID string
	Reclaimer Reclaimer
	Cycles    CycleStore
	// RespondedTTL bounds how long delivered event ids are remembered for
	// deduplication.
	RespondedTTL time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BotToken == "" {
		return errors.New("SLACK_BOT_TOKEN is required")
	}
	if !strings.HasPrefix(cfg.BotToken, "xoxb-") {
		return errors.New("SLACK_BOT_TOKEN must be a bot token (xoxb-)")
	}
	if cfg.AppToken == "" {
		return errors.New("SLACK_APP_TOKEN is required for socket mode")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return errors.New("SLACK_APP_TOKEN must be an app-level token (xapp-)")
	}
	if cfg.Reclaimer == nil {
		return errors.New("reclaimer is required")
	}
	if cfg.Cycles == nil {
		return errors.New("cycle store is required")
	}
	if cfg.RespondedTTL <= 0 {
		cfg.RespondedTTL = time.Hour
	}
	return nil
}
