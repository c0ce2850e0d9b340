// Package telegram provides a relay.Sender backed by telebot.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"hostelrelay/internal/relay"
	logx "hostelrelay/pkg/logx"
)

type Config struct {
	Token string
	// APIURL defaults to the public Bot API.
	APIURL  string
	Timeout time.Duration
}

// Sender delivers sendMessage calls through telebot's raw API access.
// The bot is created offline, so construction never touches the network.
type Sender struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if apiURL == "" {
		apiURL = relay.DefaultAPIURL
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     apiURL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{bot: b, log: log}, nil
}

// Send posts msg via Bot.Raw. telebot reports "ok":false envelopes as
// errors; those are returned as bytes so the relay interprets every
// envelope the same way. Only calls without a response body are errors.
func (s *Sender) Send(ctx context.Context, msg relay.Message) ([]byte, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := s.bot.Raw("sendMessage", msg)
		done <- result{data: data, err: err}
	}()

	var r result
	if ctx == nil {
		r = <-done
	} else {
		select {
		case <-ctx.Done():
			// The call keeps running until the client timeout; its result is dropped.
			return nil, ctx.Err()
		case r = <-done:
		}
	}

	if len(r.data) > 0 {
		if r.err != nil {
			s.log.Debug("telebot reported api error", logx.Err(r.err))
		}
		return r.data, nil
	}
	if r.err == nil {
		return nil, errors.New("telegram: empty response")
	}
	return nil, r.err
}
