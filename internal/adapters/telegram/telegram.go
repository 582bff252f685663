// Package telegram delivers movebot reminders as Telegram messages.
//
// The adapter is outbound-only: movebot never polls for updates, it just
// pushes reminder text to the configured chat.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"movebot/pkg/logx"
)

type Config struct {
	Token  string
	ChatID int64
}

var (
	ErrNoToken = errors.New("telegram token is empty")
	ErrNoChat  = errors.New("telegram chat_id is not set")
)

type Sender struct {
	cfg Config
	log logx.Logger

	mu  sync.Mutex
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) *Sender {
	return &Sender{cfg: cfg, log: log}
}

// Ready lazily connects the bot and verifies credentials. It doubles as
// the gateway's authorization probe: a bad token or missing chat is a
// denial, not a fatal error.
func (s *Sender) Ready(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.Token) == "" {
		return ErrNoToken
	}
	if s.cfg.ChatID == 0 {
		return ErrNoChat
	}
	_, err := s.connect(ctx)
	return err
}

func (s *Sender) connect(ctx context.Context) (*tele.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bot != nil {
		return s.bot, nil
	}
	b, err := tele.NewBot(tele.Settings{Token: s.cfg.Token})
	if err != nil {
		return nil, err
	}
	s.bot = b
	s.log.Info("telegram sender connected", logx.Int64("chat_id", s.cfg.ChatID))
	return b, nil
}

// Send pushes one text message to the configured chat.
func (s *Sender) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	b, err := s.connect(ctx)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := b.Send(tele.ChatID(s.cfg.ChatID), text, &tele.SendOptions{DisableWebPagePreview: true})
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			s.log.Debug("telegram send failed", logx.Err(err))
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops the bot session. The poller is never started, so there is
// nothing to stop.
func (s *Sender) Close() {
	s.mu.Lock()
	s.bot = nil
	s.mu.Unlock()
}
