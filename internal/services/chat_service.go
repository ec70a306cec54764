package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"phonestore/internal/domain"
	applog "phonestore/internal/log"
	"phonestore/internal/repos"
)

const (
	NotConfiguredReply = "The shopping assistant is not available right now. Please contact us at Phone: 456-456-4512 or Email: company@gmail.com"
	ApologyReply       = "Sorry, I encountered an error processing your request. Please try again."
)

// Generator is the external generation service.
type Generator interface {
	Available() bool
	Respond(ctx context.Context, sessionID, message string, history []domain.Turn) (domain.Reply, error)
}

// ChatService binds a shopper identity to a persisted conversation and
// forwards turns to the generation service.
type ChatService struct {
	Conversations *repos.ConversationRepo
	Gen           Generator
	// Timeout bounds one call to Gen; a timed out call is retried once.
	Timeout time.Duration
	// TTL is how long an idle conversation is kept.
	TTL time.Duration
	Now func() time.Time

	locks keyLock
}

func (s *ChatService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *ChatService) Available() bool { return s.Gen != nil && s.Gen.Available() }

// Turn runs one exchange. Turns for the same identity are serialized.
// When the generation service is missing the reply is NotConfiguredReply;
// when it fails twice the reply is ApologyReply together with an error
// wrapping domain.ErrUnavailable.
func (s *ChatService) Turn(ctx context.Context, who domain.ShopperIdentity, message string) (domain.Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return domain.Reply{}, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	key := who.Key()
	if key == "" {
		return domain.Reply{}, domain.ErrUnauthenticated
	}
	if !s.Available() {
		return domain.Reply{Text: NotConfiguredReply}, nil
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	history, err := s.Conversations.History(ctx, key)
	if err != nil {
		return domain.Reply{Text: ApologyReply}, fmt.Errorf("%w: load history: %w", domain.ErrUnavailable, err)
	}

	reply, err := s.respond(ctx, key, message, history)
	if err != nil {
		return domain.Reply{Text: ApologyReply}, err
	}

	if err := s.Conversations.Append(ctx, key, s.now().Unix(),
		domain.Turn{Role: domain.TurnUser, Text: message},
		domain.Turn{Role: domain.TurnAssistant, Text: reply.Text},
	); err != nil {
		applog.Error(nil, "chat.history.save.fail", err, map[string]any{"session": key})
	}
	return reply, nil
}

func (s *ChatService) respond(ctx context.Context, key, message string, history []domain.Turn) (domain.Reply, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		var reply domain.Reply
		reply, err = s.Gen.Respond(cctx, key, message, history)
		cancel()
		if err == nil {
			return reply, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
		}
		if !errors.Is(err, domain.ErrUnavailable) || ctx.Err() != nil {
			break
		}
		applog.Info(nil, "chat.generate.retry", map[string]any{"session": key, "attempt": attempt, "err": err.Error()})
	}
	applog.Error(nil, "chat.generate.fail", err, map[string]any{"session": key})
	if !errors.Is(err, domain.ErrUnavailable) {
		err = fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return domain.Reply{}, err
}

// History returns the stored turns for who.
func (s *ChatService) History(ctx context.Context, who domain.ShopperIdentity) ([]domain.Turn, error) {
	return s.Conversations.History(ctx, who.Key())
}

// Evict removes conversations idle for longer than TTL.
func (s *ChatService) Evict(ctx context.Context) (int64, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return s.Conversations.Evict(ctx, s.now().Add(-ttl).Unix())
}

// RunEviction calls Evict every interval until ctx is done.
func (s *ChatService) RunEviction(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Evict(ctx)
			if err != nil {
				applog.Error(nil, "chat.evict.fail", err, nil)
				continue
			}
			if n > 0 {
				applog.Info(nil, "chat.evict", map[string]any{"conversations": n})
			}
		}
	}
}
