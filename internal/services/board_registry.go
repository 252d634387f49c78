package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/yungbote/blackboard-backend/internal/lesson/narration"
	"github.com/yungbote/blackboard-backend/internal/lesson/playback"
	"github.com/yungbote/blackboard-backend/internal/observability"
	"github.com/yungbote/blackboard-backend/internal/platform/clock"
	"github.com/yungbote/blackboard-backend/internal/platform/logger"
)

const DefaultBoardIdleTTL = 30 * time.Minute

type RegistryConfig struct {
	IdleTTL  time.Duration
	Playback playback.Config
	// NewNarrator builds the narrator for one board. Narrators are never shared:
	// CancelAll on one board must not silence another.
	NewNarrator func() narration.Service
}

type boardEntry struct {
	ctrl     *playback.Controller
	lastUsed time.Time
}

// BoardRegistry holds one playback controller per board id.
type BoardRegistry struct {
	log      *logger.Logger
	clock    clock.Clock
	notifier BoardNotifier
	cfg      RegistryConfig

	mu     sync.Mutex
	boards map[string]*boardEntry
}

func NewBoardRegistry(log *logger.Logger, clk clock.Clock, notifier BoardNotifier, cfg RegistryConfig) *BoardRegistry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultBoardIdleTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &BoardRegistry{
		log:      log.With("service", "BoardRegistry"),
		clock:    clk,
		notifier: notifier,
		cfg:      cfg,
		boards:   make(map[string]*boardEntry),
	}
}

// Get returns the board's controller, creating it on first use.
func (r *BoardRegistry) Get(boardID string) *playback.Controller {
	boardID = strings.TrimSpace(boardID)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if e, ok := r.boards[boardID]; ok {
		e.lastUsed = now
		return e.ctrl
	}

	var sink playback.EventSink
	if r.notifier != nil {
		sink = r.notifier.Sink(boardID)
	}
	ctrl := playback.NewController(
		r.log.With("board_id", boardID),
		r.cfg.NewNarrator(),
		r.clock,
		sink,
		r.cfg.Playback,
	)
	r.boards[boardID] = &boardEntry{ctrl: ctrl, lastUsed: now}
	observability.Current().SetActiveBoards(len(r.boards))
	r.log.Debug("board created", "board_id", boardID)
	return ctrl
}

// Lookup returns the board's controller without creating one.
func (r *BoardRegistry) Lookup(boardID string) (*playback.Controller, bool) {
	boardID = strings.TrimSpace(boardID)
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.boards[boardID]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.clock.Now()
	return e.ctrl, true
}

// Snapshot reports the board's state. A board that does not exist yet reads
// as idle with the configured autoplay default.
func (r *BoardRegistry) Snapshot(boardID string) playback.Snapshot {
	if ctrl, ok := r.Lookup(boardID); ok {
		return ctrl.Snapshot()
	}
	return playback.Snapshot{Phase: playback.PhaseIdle, NextIndex: -1, AutoPlay: r.cfg.Playback.AutoPlay}
}

func (r *BoardRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boards)
}

// Sweep evicts boards that have been idle for longer than the TTL and
// returns how many were removed.
func (r *BoardRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-r.cfg.IdleTTL)
	evicted := 0
	for id, e := range r.boards {
		if e.lastUsed.After(cutoff) || !e.ctrl.Idle() {
			continue
		}
		delete(r.boards, id)
		evicted++
	}
	if evicted > 0 {
		observability.Current().SetActiveBoards(len(r.boards))
		r.log.Info("evicted idle boards", "count", evicted, "remaining", len(r.boards))
	}
	return evicted
}

// Run sweeps periodically until ctx is done.
func (r *BoardRegistry) Run(ctx context.Context) error {
	interval := r.cfg.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.Sweep()
		}
	}
}
