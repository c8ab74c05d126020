package chat

import (
	"context"
	"sync"
	"time"

	"github.com/pawlink/pawlink-chat/internal/api"
	"github.com/pawlink/pawlink-chat/pkg/logger"
	"github.com/pawlink/pawlink-chat/pkg/metrics"
	"github.com/pawlink/pawlink-chat/pkg/models"
)

// DefaultPollInterval is how often the poller re-fetches a conversation.
const DefaultPollInterval = 3 * time.Second

// PollerConfig configures a passive message poller for one conversation.
type PollerConfig struct {
	API      api.MessageAPI
	ChatID   string
	UserID   string
	Interval time.Duration

	// OnNewMessages receives only messages whose ids have not been seen on
	// a previous poll. The first successful poll seeds the seen set and
	// reports nothing.
	OnNewMessages func(msgs []models.Message)
}

// Poller periodically fetches a conversation's full message list and
// reports only genuinely new entries by diffing ids against everything it
// has seen before. It is a fallback for transports the realtime socket
// cannot reach.
type Poller struct {
	cfg PollerConfig
	log *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	seen    map[string]struct{}
	primed  bool
	running bool
}

func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &Poller{
		cfg:  cfg,
		log:  logger.WithContext("component", "chat_poller", "chat_id", cfg.ChatID),
		seen: make(map[string]struct{}),
	}
}

// Start begins polling. Calling Start on a running poller is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop halts polling. It is idempotent and safe to call on a poller that
// never started.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.running = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ctx context.Context) {
	// Poll once immediately so the seen set is primed without waiting a
	// full interval.
	p.poll(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	metrics.IncrementPollTicks()

	msgs, err := p.cfg.API.FetchMessages(ctx, p.cfg.ChatID, p.cfg.UserID)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Debug("poll_failed", "error", err.Error())
		}
		return
	}

	p.mu.Lock()
	firstPoll := !p.primed
	var fresh []models.Message
	for _, m := range msgs {
		if _, ok := p.seen[m.ID]; ok {
			continue
		}
		p.seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	p.primed = true
	p.mu.Unlock()

	// Everything on the first poll is pre-existing history, not news.
	if firstPoll || len(fresh) == 0 {
		return
	}
	if p.cfg.OnNewMessages != nil {
		p.cfg.OnNewMessages(fresh)
	}
}

// Watcher keeps at most one poller running for the current conversation,
// tearing down and re-priming it whenever the conversation or user
// changes.
type Watcher struct {
	api      api.MessageAPI
	interval time.Duration
	onNew    func(msgs []models.Message)

	mu     sync.Mutex
	chatID string
	userID string
	poller *Poller
}

func NewWatcher(a api.MessageAPI, interval time.Duration, onNew func(msgs []models.Message)) *Watcher {
	return &Watcher{api: a, interval: interval, onNew: onNew}
}

// SetTarget points the watcher at a conversation, restarting the poll loop
// with a fresh seen set when the identity differs from the current one.
// Setting the same target twice is a no-op.
func (w *Watcher) SetTarget(chatID, userID string) {
	w.mu.Lock()
	if w.chatID == chatID && w.userID == userID && w.poller != nil {
		w.mu.Unlock()
		return
	}
	old := w.poller
	w.chatID = chatID
	w.userID = userID
	w.poller = NewPoller(PollerConfig{
		API:           w.api,
		ChatID:        chatID,
		UserID:        userID,
		Interval:      w.interval,
		OnNewMessages: w.onNew,
	})
	next := w.poller
	w.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	next.Start()
}

// Stop halts the active poller, if any.
func (w *Watcher) Stop() {
	w.mu.Lock()
	old := w.poller
	w.poller = nil
	w.chatID = ""
	w.userID = ""
	w.mu.Unlock()

	if old != nil {
		old.Stop()
	}
}
