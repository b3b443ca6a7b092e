package bot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
)

// Reclaimer is the pipeline the bot drives.
type Reclaimer interface {
	Discover(ctx context.Context) []reclaimer.SponsoredAccount
	Evaluate(ctx context.Context, accounts []reclaimer.SponsoredAccount) []reclaimer.ReclaimableAccount
	ReclaimBatch(ctx context.Context, accounts []reclaimer.ReclaimableAccount) []reclaimer.ReclaimResult
	GetStats(scanned []reclaimer.SponsoredAccount, reclaimable []reclaimer.ReclaimableAccount) reclaimer.RentStats
	SignerAddress() string
	TreasuryAddress() string
	MinBalance() uint64
	AccountAgeThreshold() int
}

// CycleStore exposes the most recent full cycle.
type CycleStore interface {
	Last() *reclaimer.CycleResult
}

// Poster posts replies to Slack.
type Poster interface {
	PostMessage(ctx context.Context, channelID, threadTS, text string) error
}

// Reactor marks messages with emoji while they are being handled.
type Reactor interface {
	AddReaction(ctx context.Context, channelID, timestamp, emoji string) error
	RemoveReaction(ctx context.Context, channelID, timestamp, emoji string) error
}

const workingReaction = "hourglass_flowing_sand"

type Command string

const (
	CommandStatus  Command = "status"
	CommandScan    Command = "scan"
	CommandReclaim Command = "reclaim"
	CommandConfig  Command = "config"
	CommandHelp    Command = "help"
	CommandUnknown Command = "unknown"
)

// ParseCommand reads the first word of text as a command. The remaining words
// are returned lowercased as arguments.
func ParseCommand(text string) (Command, []string) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return CommandHelp, nil
	}
	args := fields[1:]
	switch fields[0] {
	case "status", "stats":
		return CommandStatus, args
	case "scan":
		return CommandScan, args
	case "reclaim":
		return CommandReclaim, args
	case "config":
		return CommandConfig, args
	case "help", "?":
		return CommandHelp, args
	default:
		return CommandUnknown, args
	}
}

// Message is an inbound chat message addressed to the bot.
type Message struct {
	// Key identifies the message for deduplication, usually channel and ts.
	Key      string
	Channel  string
	User     string
	Text     string
	TS       string
	ThreadTS string
}

// Processor turns chat commands into Reclaimer calls and posts the replies.
// Commands run one at a time.
type Processor struct {
	log       *slog.Logger
	clock     clockwork.Clock
	poster    Poster
	reactor   Reactor
	reclaimer Reclaimer
	cycles    CycleStore
	channelID string
	ttl       time.Duration

	// cmdMu keeps scans and reclaims from different threads from interleaving.
	cmdMu sync.Mutex

	respondedMu sync.Mutex
	responded   map[string]time.Time
}

type ProcessorConfig struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Poster    Poster
	// Reactor is optional.
	Reactor   Reactor
	Reclaimer Reclaimer
	Cycles    CycleStore
	ChannelID string
	// RespondedTTL bounds how long handled message keys are remembered.
	RespondedTTL time.Duration
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RespondedTTL <= 0 {
		cfg.RespondedTTL = time.Hour
	}
	return &Processor{
		log:       cfg.Logger,
		clock:     cfg.Clock,
		poster:    cfg.Poster,
		reactor:   cfg.Reactor,
		reclaimer: cfg.Reclaimer,
		cycles:    cfg.Cycles,
		channelID: cfg.ChannelID,
		ttl:       cfg.RespondedTTL,
		responded: make(map[string]time.Time),
	}
}

// StartCleanup periodically forgets handled message keys older than the ttl.
func (p *Processor) StartCleanup(ctx context.Context) {
	go func() {
		ticker := p.clock.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				p.cleanup()
			}
		}
	}()
}

func (p *Processor) cleanup() {
	now := p.clock.Now()
	p.respondedMu.Lock()
	defer p.respondedMu.Unlock()
	for key, at := range p.responded {
		if now.Sub(at) > p.ttl {
			delete(p.responded, key)
		}
	}
}

// markResponded records key and reports whether it was new.
func (p *Processor) markResponded(key string) bool {
	p.respondedMu.Lock()
	defer p.respondedMu.Unlock()
	if _, ok := p.responded[key]; ok {
		return false
	}
	p.responded[key] = p.clock.Now()
	return true
}

// HandleMessage runs the command in msg and replies in its thread. Redelivered
// messages are ignored.
func (p *Processor) HandleMessage(ctx context.Context, msg Message) {
	if msg.Key != "" && !p.markResponded(msg.Key) {
		EventsDuplicateTotal.Inc()
		p.log.Debug("slack: skipping duplicate message", "key", msg.Key)
		return
	}

	cmd, args := ParseCommand(msg.Text)
	CommandsTotal.WithLabelValues(string(cmd)).Inc()
	p.log.Info("slack: handling command", "command", string(cmd), "args", args, "user", msg.User, "channel", msg.Channel)

	if p.reactor != nil && msg.TS != "" {
		if err := p.reactor.AddReaction(ctx, msg.Channel, msg.TS, workingReaction); err == nil {
			defer func() {
				_ = p.reactor.RemoveReaction(ctx, msg.Channel, msg.TS, workingReaction)
			}()
		}
	}

	reply := p.Respond(ctx, cmd, args)

	threadTS := msg.ThreadTS
	if threadTS == "" {
		threadTS = msg.TS
	}
	if err := p.poster.PostMessage(ctx, msg.Channel, threadTS, reply); err != nil {
		p.log.Error("slack: failed to post reply", "channel", msg.Channel, "error", err)
	}
}

// Respond executes cmd and returns the mrkdwn reply.
func (p *Processor) Respond(ctx context.Context, cmd Command, args []string) string {
	switch cmd {
	case CommandStatus:
		return FormatStats(p.stats())
	case CommandConfig:
		return FormatConfig(p.reclaimer)
	case CommandHelp:
		return FormatHelp()
	case CommandScan:
		p.cmdMu.Lock()
		defer p.cmdMu.Unlock()
		scanned := p.reclaimer.Discover(ctx)
		reclaimable := p.reclaimer.Evaluate(ctx, scanned)
		return FormatScan(reclaimable, p.reclaimer.GetStats(scanned, reclaimable))
	case CommandReclaim:
		return p.reclaim(ctx, len(args) > 0 && args[0] == "confirm")
	default:
		return "I don't know that command.\n" + FormatHelp()
	}
}

func (p *Processor) reclaim(ctx context.Context, confirmed bool) string {
	p.cmdMu.Lock()
	defer p.cmdMu.Unlock()

	scanned := p.reclaimer.Discover(ctx)
	reclaimable := p.reclaimer.Evaluate(ctx, scanned)
	if len(reclaimable) == 0 {
		return "Nothing to reclaim."
	}
	if !confirmed {
		return FormatScan(reclaimable, p.reclaimer.GetStats(scanned, reclaimable)) +
			"\nReply `reclaim confirm` to move these balances to the treasury."
	}
	results := p.reclaimer.ReclaimBatch(ctx, reclaimable)
	return FormatResults(results)
}

func (p *Processor) stats() reclaimer.RentStats {
	if last := p.cycles.Last(); last != nil {
		return p.reclaimer.GetStats(last.Scanned, last.Reclaimable)
	}
	return p.reclaimer.GetStats(nil, nil)
}

// NotifyCycle posts a cycle summary to the configured channel. Cycles that
// found nothing to reclaim are not posted.
func (p *Processor) NotifyCycle(ctx context.Context, cycle reclaimer.CycleResult) {
	if p.channelID == "" || len(cycle.Reclaimable) == 0 {
		return
	}
	text := FormatCycle(cycle, p.reclaimer.GetStats(cycle.Scanned, cycle.Reclaimable))
	if err := p.poster.PostMessage(ctx, p.channelID, "", text); err != nil {
		p.log.Error("slack: failed to post cycle summary", "channel", p.channelID, "cycle_id", cycle.ID, "error", err)
	}
}
