package chatbot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studiumhub/coursechat/internal/llm"
	"gorm.io/gorm"
)

// StreamOpener opens the upstream SSE byte stream. Satisfied by *llm.Client.
type StreamOpener interface {
	OpenStream(ctx context.Context, req *llm.ChatRequest) (io.ReadCloser, error)
}

// Orchestrator drives one chat turn end to end: persist the user message,
// reserve the assistant placeholder, stream the upstream response to the
// client and make sure partial progress survives any drop path.
type Orchestrator struct {
	repo     *Repo
	configs  ConfigSource
	upstream StreamOpener
	search   SearchSettings
	logger   *slog.Logger
}

func NewOrchestrator(repo *Repo, configs ConfigSource, upstream StreamOpener, search SearchSettings, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		repo:     repo,
		configs:  configs,
		upstream: upstream,
		search:   search,
		logger:   logger,
	}
}

// Stream is the client-facing side of a chat turn. Chunks carries
// newline-terminated {"text":...} JSON lines; once it closes, Err reports
// how the stream ended (nil means completed). Close abandons the stream and
// is safe to call at any time; the guard settles the assistant row either
// way.
type Stream struct {
	chunks chan []byte
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *Stream) Chunks() <-chan []byte { return s.chunks }

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) Close() {
	s.cancel()
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

type streamItem struct {
	Text string `json:"text"`
}

// StartChat runs the pre-flight sequence and returns the client stream. The
// caller's context governs the whole turn: when it ends (client disconnect,
// handler timeout) the stream goroutine unwinds and the guard persists
// whatever was accumulated. On QuotaExceeded the user message row is kept
// and not charged; whether it should be is a product call that is left as
// observed.
func (o *Orchestrator) StartChat(ctx context.Context, userID uint64, conversationID, userText, originHost string) (*Stream, error) {
	conv, err := o.repo.GetConversationByPublicID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	if conv.UserID != userID {
		return nil, ErrConversationNotFound
	}

	cfg, err := o.configs.GetConfiguration(ctx, conv.ConfigurationID)
	if err != nil {
		return nil, err
	}

	ap, err := AssemblePrompt(ctx, o.repo, cfg, conv, userText, originHost, o.search)
	if err != nil {
		return nil, err
	}

	if err := o.checkQuota(ctx, userID, cfg, ap.ReservedTokens); err != nil {
		return nil, err
	}

	placeholder, err := o.repo.InsertAssistantPlaceholder(ctx, conv.ID, ap.UserMessage.OrderNumber+1, ap.ReservedTokens)
	if err != nil {
		return nil, err
	}

	acc := &accumulator{}
	done := &atomic.Bool{}
	guard := newGuard(o.repo, placeholder.ID, acc, ap.ReservedTokens, done, userID, cfg.ID, o.logger)

	sctx, cancel := context.WithCancel(ctx)
	body, err := o.upstream.OpenStream(sctx, ap.Request)
	if err != nil {
		cancel()
		// Accumulator is empty, so this deletes the placeholder.
		guard.Release()
		return nil, err
	}

	s := &Stream{
		chunks: make(chan []byte, 16),
		cancel: cancel,
	}
	go o.run(sctx, s, guard, acc, body)
	return s, nil
}

func (o *Orchestrator) checkQuota(ctx context.Context, userID uint64, cfg *Configuration, reserved int) error {
	now := time.Now()
	limits := []struct {
		window UsageWindow
		quota  int32
	}{
		{WindowDay, cfg.DailyTokensPerUser},
		{WindowWeek, cfg.WeeklyTokensPerUser},
	}
	for _, l := range limits {
		if l.quota <= 0 {
			continue
		}
		used, err := o.repo.GetUsage(ctx, userID, cfg.ID, l.window, now)
		if err != nil {
			return err
		}
		if used+reserved > int(l.quota) {
			return ErrQuotaExceeded
		}
	}
	return nil
}

// run consumes the upstream SSE bytes line by line, mirrors delta content
// into the accumulator and the client channel, and finalizes on the [DONE]
// sentinel. The guard release in the defer chain covers every other exit.
func (o *Orchestrator) run(ctx context.Context, s *Stream, guard *CancellationGuard, acc *accumulator, body io.ReadCloser) {
	defer close(s.chunks)
	defer guard.Release()
	defer body.Close()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("chat stream panicked", "panic", r)
			s.fail(fmt.Errorf("chatbot: stream panic: %v", r))
		}
	}()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if strings.TrimSpace(data) == "[DONE]" {
			if err := guard.Complete(); err != nil {
				o.logger.Error("finalize after [DONE] failed", "err", err)
				s.fail(err)
			}
			return
		}

		var chunk llm.StreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.fail(fmt.Errorf("chatbot: parse upstream chunk: %w", err))
			return
		}

		for _, choice := range chunk.Choices {
			content := choice.Delta.Content
			if content == "" {
				continue
			}
			acc.append(content)

			item, err := json.Marshal(streamItem{Text: content})
			if err != nil {
				s.fail(err)
				return
			}
			item = append(item, '\n')

			select {
			case s.chunks <- item:
			case <-ctx.Done():
				s.fail(ctx.Err())
				return
			}
		}
	}

	if err := sc.Err(); err != nil {
		s.fail(err)
		return
	}
	// Upstream closed without the sentinel.
	s.fail(ErrStreamTruncated)
}
