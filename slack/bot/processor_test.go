package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/rentreclaim/reclaim/pkg/reclaimer"
	reclaimtesting "github.com/malbeclabs/rentreclaim/utils/pkg/testing"
	"github.com/stretchr/testify/require"
)

type post struct {
	channel  string
	threadTS string
	text     string
}

type mockPoster struct {
	mu    sync.Mutex
	posts []post
	err   error
}

func (m *mockPoster) PostMessage(_ context.Context, channelID, threadTS, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, post{channel: channelID, threadTS: threadTS, text: text})
	return m.err
}

func (m *mockPoster) all() []post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]post(nil), m.posts...)
}

type mockReclaimer struct {
	mu          sync.Mutex
	scanned     []reclaimer.SponsoredAccount
	reclaimable []reclaimer.ReclaimableAccount
	results     []reclaimer.ReclaimResult
	batchCalls  int
}

func (m *mockReclaimer) Discover(context.Context) []reclaimer.SponsoredAccount { return m.scanned }

func (m *mockReclaimer) Evaluate(context.Context, []reclaimer.SponsoredAccount) []reclaimer.ReclaimableAccount {
	return m.reclaimable
}

func (m *mockReclaimer) ReclaimBatch(context.Context, []reclaimer.ReclaimableAccount) []reclaimer.ReclaimResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchCalls++
	return m.results
}

func (m *mockReclaimer) GetStats(scanned []reclaimer.SponsoredAccount, reclaimable []reclaimer.ReclaimableAccount) reclaimer.RentStats {
	stats := reclaimer.RentStats{MonitoredAccounts: len(scanned), ReclaimableAccounts: len(reclaimable)}
	for _, a := range scanned {
		stats.LockedLamports += a.Lamports
	}
	for _, a := range reclaimable {
		stats.ReclaimableLamports += a.EstimatedLamports
	}
	return stats
}

func (m *mockReclaimer) SignerAddress() string    { return "SignerAddr1111111111111111111111111111111111" }
func (m *mockReclaimer) TreasuryAddress() string  { return "TreasuryAddr11111111111111111111111111111111" }
func (m *mockReclaimer) MinBalance() uint64       { return 1_000_000 }
func (m *mockReclaimer) AccountAgeThreshold() int { return 30 }

type mockCycles struct {
	last *reclaimer.CycleResult
}

func (c *mockCycles) Last() *reclaimer.CycleResult { return c.last }

func testPK(n byte) solana.PublicKey {
	var b [32]byte
	for i := range b {
		b[i] = n + byte(i)
	}
	return solana.PublicKeyFromBytes(b[:])
}

func fixtureReclaimer() *mockReclaimer {
	sig := "3xSig"
	errText := "account needs a program-specific close instruction (owned by TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA)"
	a := reclaimer.SponsoredAccount{Address: testPK(1), Exists: true, Lamports: 2_000_000}
	b := reclaimer.SponsoredAccount{Address: testPK(2), Exists: true, Lamports: 2_039_280, DataLen: 165}
	return &mockReclaimer{
		scanned: []reclaimer.SponsoredAccount{a, b},
		reclaimable: []reclaimer.ReclaimableAccount{
			{SponsoredAccount: a, Reason: reclaimer.ReasonEmptyPayload, EstimatedLamports: 2_000_000},
			{SponsoredAccount: b, Reason: reclaimer.ReasonInactive, EstimatedLamports: 2_039_280},
		},
		results: []reclaimer.ReclaimResult{
			{Success: true, Address: testPK(1), Lamports: 2_000_000, Signature: &sig},
			{Success: false, Address: testPK(2), Error: &errText},
		},
	}
}

func newTestProcessor(rec *mockReclaimer, poster *mockPoster, cycles *mockCycles, channel string) *Processor {
	return NewProcessor(ProcessorConfig{
		Logger:    reclaimtesting.NewLogger(),
		Clock:     clockwork.NewFakeClock(),
		Poster:    poster,
		Reclaimer: rec,
		Cycles:    cycles,
		ChannelID: channel,
	})
}

func TestReclaim_Slack_ParseCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected Command
		args     []string
	}{
		{input: "status", expected: CommandStatus, args: []string{}},
		{input: "  STATS ", expected: CommandStatus, args: []string{}},
		{input: "scan", expected: CommandScan, args: []string{}},
		{input: "reclaim confirm", expected: CommandReclaim, args: []string{"confirm"}},
		{input: "Reclaim CONFIRM now", expected: CommandReclaim, args: []string{"confirm", "now"}},
		{input: "config", expected: CommandConfig, args: []string{}},
		{input: "", expected: CommandHelp},
		{input: "?", expected: CommandHelp, args: []string{}},
		{input: "launch rockets", expected: CommandUnknown, args: []string{"rockets"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			cmd, args := ParseCommand(tt.input)
			require.Equal(t, tt.expected, cmd)
			require.Equal(t, tt.args, args)
		})
	}
}

func TestReclaim_Slack_Processor_Respond(t *testing.T) {
	t.Parallel()

	t.Run("status without a cycle", func(t *testing.T) {
		t.Parallel()
		p := newTestProcessor(fixtureReclaimer(), &mockPoster{}, &mockCycles{}, "")
		reply := p.Respond(context.Background(), CommandStatus, nil)
		require.Contains(t, reply, "Monitored accounts: *0*")
		require.Contains(t, reply, "Last scan: never")
	})

	t.Run("status uses the last cycle", func(t *testing.T) {
		t.Parallel()
		rec := fixtureReclaimer()
		p := newTestProcessor(rec, &mockPoster{}, &mockCycles{last: &reclaimer.CycleResult{Scanned: rec.scanned}}, "")
		reply := p.Respond(context.Background(), CommandStatus, nil)
		require.Contains(t, reply, "Monitored accounts: *2* holding 0.00403928 SOL")
	})

	t.Run("scan lists reclaimable accounts without reclaiming", func(t *testing.T) {
		t.Parallel()
		rec := fixtureReclaimer()
		p := newTestProcessor(rec, &mockPoster{}, &mockCycles{}, "")
		reply := p.Respond(context.Background(), CommandScan, nil)
		require.Contains(t, reply, "2 accounts checked, 2 reclaimable")
		require.Contains(t, reply, "(empty)")
		require.Contains(t, reply, "(inactive)")
		require.Zero(t, rec.batchCalls)
	})

	t.Run("reclaim without confirm only previews", func(t *testing.T) {
		t.Parallel()
		rec := fixtureReclaimer()
		p := newTestProcessor(rec, &mockPoster{}, &mockCycles{}, "")
		reply := p.Respond(context.Background(), CommandReclaim, nil)
		require.Contains(t, reply, "reclaim confirm")
		require.Zero(t, rec.batchCalls)
	})

	t.Run("reclaim confirm executes the batch", func(t *testing.T) {
		t.Parallel()
		rec := fixtureReclaimer()
		p := newTestProcessor(rec, &mockPoster{}, &mockCycles{}, "")
		reply := p.Respond(context.Background(), CommandReclaim, []string{"confirm"})
		require.Equal(t, 1, rec.batchCalls)
		require.Contains(t, reply, "1 of 2 succeeded, 0.002 SOL recovered")
		require.Contains(t, reply, "explorer.solana.com/tx/3xSig")
		require.Contains(t, reply, "program-specific close instruction")
	})

	t.Run("reclaim with nothing eligible", func(t *testing.T) {
		t.Parallel()
		rec := &mockReclaimer{}
		p := newTestProcessor(rec, &mockPoster{}, &mockCycles{}, "")
		require.Equal(t, "Nothing to reclaim.", p.Respond(context.Background(), CommandReclaim, []string{"confirm"}))
		require.Zero(t, rec.batchCalls)
	})

	t.Run("config and unknown", func(t *testing.T) {
		t.Parallel()
		p := newTestProcessor(fixtureReclaimer(), &mockPoster{}, &mockCycles{}, "")
		require.Contains(t, p.Respond(context.Background(), CommandConfig, nil), "Inactive after: 30 days")
		require.Contains(t, p.Respond(context.Background(), CommandUnknown, nil), "I don't know that command")
	})
}

func TestReclaim_Slack_Processor_HandleMessage(t *testing.T) {
	t.Parallel()

	t.Run("replies in thread and skips duplicates", func(t *testing.T) {
		t.Parallel()
		poster := &mockPoster{}
		p := newTestProcessor(fixtureReclaimer(), poster, &mockCycles{}, "")
		msg := Message{Key: "C1:100.1", Channel: "C1", TS: "100.1", Text: "help"}

		p.HandleMessage(context.Background(), msg)
		p.HandleMessage(context.Background(), msg)

		posts := poster.all()
		require.Len(t, posts, 1)
		require.Equal(t, "C1", posts[0].channel)
		require.Equal(t, "100.1", posts[0].threadTS)
		require.Contains(t, posts[0].text, "Rent reclaim bot")
	})

	t.Run("keeps the existing thread", func(t *testing.T) {
		t.Parallel()
		poster := &mockPoster{}
		p := newTestProcessor(fixtureReclaimer(), poster, &mockCycles{}, "")

		p.HandleMessage(context.Background(), Message{Key: "k", Channel: "C1", TS: "200.2", ThreadTS: "100.1", Text: "status"})

		require.Equal(t, "100.1", poster.all()[0].threadTS)
	})

	t.Run("post failure is logged not raised", func(t *testing.T) {
		t.Parallel()
		poster := &mockPoster{err: errors.New("channel_not_found")}
		p := newTestProcessor(fixtureReclaimer(), poster, &mockCycles{}, "")
		p.HandleMessage(context.Background(), Message{Channel: "C1", Text: "status"})
		require.Len(t, poster.all(), 1)
	})
}

func TestReclaim_Slack_Processor_Cleanup(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	p := NewProcessor(ProcessorConfig{
		Logger:       reclaimtesting.NewLogger(),
		Clock:        clock,
		Poster:       &mockPoster{},
		Reclaimer:    fixtureReclaimer(),
		Cycles:       &mockCycles{},
		RespondedTTL: time.Minute,
	})

	require.True(t, p.markResponded("a"))
	require.False(t, p.markResponded("a"))
	clock.Advance(2 * time.Minute)
	p.cleanup()
	require.True(t, p.markResponded("a"))
}

func TestReclaim_Slack_Processor_NotifyCycle(t *testing.T) {
	t.Parallel()

	t.Run("posts to the channel", func(t *testing.T) {
		t.Parallel()
		rec := fixtureReclaimer()
		poster := &mockPoster{}
		p := newTestProcessor(rec, poster, &mockCycles{}, "C-ALERTS")

		p.NotifyCycle(context.Background(), reclaimer.CycleResult{
			ID:          "0d9f3c1e-ffff-4a4a-9b9b-1234567890ab",
			Scanned:     rec.scanned,
			Reclaimable: rec.reclaimable,
			Results:     rec.results,
		})

		posts := poster.all()
		require.Len(t, posts, 1)
		require.Equal(t, "C-ALERTS", posts[0].channel)
		require.Empty(t, posts[0].threadTS)
		require.Contains(t, posts[0].text, "Scanned 2 accounts, 2 reclaimable")
	})

	t.Run("skips empty cycles and missing channel", func(t *testing.T) {
		t.Parallel()
		poster := &mockPoster{}
		newTestProcessor(fixtureReclaimer(), poster, &mockCycles{}, "C-ALERTS").
			NotifyCycle(context.Background(), reclaimer.CycleResult{})
		rec := fixtureReclaimer()
		newTestProcessor(rec, poster, &mockCycles{}, "").
			NotifyCycle(context.Background(), reclaimer.CycleResult{Reclaimable: rec.reclaimable})
		require.Empty(t, poster.all())
	})
}

type mockReactor struct {
	mu     sync.Mutex
	events []string
}

func (m *mockReactor) AddReaction(_ context.Context, _, ts, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "add:"+ts+":"+emoji)
	return nil
}

func (m *mockReactor) RemoveReaction(_ context.Context, _, ts, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "remove:"+ts+":"+emoji)
	return nil
}

func TestReclaim_Slack_Processor_Reactions(t *testing.T) {
	t.Parallel()

	reactor := &mockReactor{}
	poster := &mockPoster{}
	p := NewProcessor(ProcessorConfig{
		Logger:    reclaimtesting.NewLogger(),
		Clock:     clockwork.NewFakeClock(),
		Poster:    poster,
		Reactor:   reactor,
		Reclaimer: fixtureReclaimer(),
		Cycles:    &mockCycles{},
	})

	p.HandleMessage(context.Background(), Message{Key: "C1:1.1", Channel: "C1", TS: "1.1", Text: "config"})
	p.HandleMessage(context.Background(), Message{Key: "slash", Channel: "C1", Text: "config"})

	require.Equal(t, []string{
		"add:1.1:" + workingReaction,
		"remove:1.1:" + workingReaction,
	}, reactor.events)
	require.Len(t, poster.all(), 2)
}
