package chatbot

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studiumhub/coursechat/internal/tokens"
)

// accumulator collects the text fragments received from upstream for the
// in-flight assistant response. It has exactly two holders: the stream
// goroutine and the guard.
type accumulator struct {
	mu        sync.Mutex
	fragments []string
}

func (a *accumulator) append(s string) {
	a.mu.Lock()
	a.fragments = append(a.fragments, s)
	a.mu.Unlock()
}

// joinLocked concatenates the fragments. Caller holds a.mu.
func (a *accumulator) joinLocked() string {
	return strings.Join(a.fragments, "")
}

const releaseTimeout = 10 * time.Second

// CancellationGuard is the safety net for an in-flight assistant turn. While
// armed it owns the placeholder row's fate: on release it persists whatever
// the accumulator holds, or deletes the row if nothing ever arrived. The
// stream goroutine releases it in a defer, so every exit path (completion,
// client disconnect, parse failure, panic) settles the row exactly once.
type CancellationGuard struct {
	repo           *Repo
	placeholderID  uint64
	acc            *accumulator
	reservedTokens int
	done           *atomic.Bool
	userID         uint64
	configID       uint64
	logger         *slog.Logger
}

func newGuard(repo *Repo, placeholderID uint64, acc *accumulator, reservedTokens int, done *atomic.Bool, userID, configID uint64, logger *slog.Logger) *CancellationGuard {
	return &CancellationGuard{
		repo:           repo,
		placeholderID:  placeholderID,
		acc:            acc,
		reservedTokens: reservedTokens,
		done:           done,
		userID:         userID,
		configID:       configID,
		logger:         logger,
	}
}

// Complete finalizes the placeholder on the [DONE] path. The done flag is
// set before the accumulator mutex is released so a concurrent Release
// cannot double-finalize. A fully received answer is persisted on a
// detached context: the client vanishing at the very end must not lose it.
func (g *CancellationGuard) Complete() error {
	g.acc.mu.Lock()
	defer g.acc.mu.Unlock()
	if g.done.Load() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	err := g.finalizeLocked(ctx)
	g.done.Store(true)
	return err
}

// Release settles the placeholder after the stream was dropped. The request
// context is gone by now, so the writes run on a detached short-lived
// context. Failures here are logged and swallowed; they must not mask the
// outcome the client already observed.
func (g *CancellationGuard) Release() {
	g.acc.mu.Lock()
	defer g.acc.mu.Unlock()
	if g.done.Load() {
		return
	}
	g.done.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	if len(g.acc.fragments) == 0 {
		if err := g.repo.DeleteMessage(ctx, g.placeholderID); err != nil {
			g.logger.Error("guard: delete empty placeholder failed",
				"message_id", g.placeholderID, "err", err)
		}
		return
	}

	if err := g.finalizeLocked(ctx); err != nil {
		g.logger.Error("guard: partial persist failed",
			"message_id", g.placeholderID, "err", err)
	}
}

// finalizeLocked writes the joined text, marks the message complete and
// charges the usage counters. Caller holds the accumulator mutex.
func (g *CancellationGuard) finalizeLocked(ctx context.Context) error {
	joined := g.acc.joinLocked()
	total := g.reservedTokens + tokens.Estimate(joined)

	if err := g.repo.FinalizeAssistant(ctx, g.placeholderID, joined, true, total); err != nil {
		return err
	}

	now := time.Now()
	for _, w := range []UsageWindow{WindowDay, WindowWeek} {
		if err := g.repo.AddUsage(ctx, g.userID, g.configID, w, now, total); err != nil {
			g.logger.Error("guard: usage accounting failed",
				"message_id", g.placeholderID, "window", string(w), "err", err)
		}
	}
	return nil
}
