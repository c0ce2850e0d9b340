package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"hostelrelay/internal/config"
	"hostelrelay/internal/intake"
	"hostelrelay/internal/probe"
	"hostelrelay/internal/relay"
	"hostelrelay/internal/runtime/supervisor"
	"hostelrelay/internal/transport/telegram"
	logx "hostelrelay/pkg/logx"
)

// App wires the relay with its optional intake API and connection probe.
type App struct {
	cfg *config.Config

	log  logx.Logger
	logs *logx.Service

	relay  *relay.Relay
	intake *intake.Server
	probe  *probe.Service

	sup *supervisor.Supervisor
}

func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLoggingConfig(cfg))
	a := &App{cfg: cfg, log: log.With(logx.String("comp", "app")), logs: logs}

	rcfg, err := mapRelayConfig(cfg)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	sender, err := newSender(cfg, rcfg, log)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.relay, err = relay.New(rcfg,
		relay.WithSender(sender),
		relay.WithLogger(log.With(logx.String("comp", "relay"))),
	)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	if cfg.Intake.Enabled {
		scfg, err := mapIntakeServerConfig(cfg)
		if err != nil {
			_ = logs.Close()
			return nil, err
		}
		ilog := log.With(logx.String("comp", "intake"))
		h := intake.NewHandler(intake.HandlerConfig{
			Token:          cfg.Intake.Token,
			RatePerSec:     cfg.Intake.RatePerSec,
			Burst:          cfg.Intake.Burst,
			AllowedOrigins: cfg.Intake.AllowedOrigins,
		}, a.relay, ilog)
		a.intake = intake.NewServer(scfg, h, ilog)
	}

	if cfg.Probe.Enabled {
		a.probe, err = probe.New(probe.Config{
			Schedule: cfg.Probe.Schedule,
			Location: rcfg.Location,
		}, a.relay, log.With(logx.String("comp", "probe")))
		if err != nil {
			_ = logs.Close()
			return nil, fmt.Errorf("probe.schedule: %w", err)
		}
	}
	return a, nil
}

func (a *App) Relay() *relay.Relay { return a.relay }

// TestConnection sends the fixed test message once.
func (a *App) TestConnection(ctx context.Context) relay.Result {
	return a.relay.TestConnection(ctx)
}

// IntakeAddr is the bound intake address ("" when disabled or not started).
func (a *App) IntakeAddr() string {
	if a.intake == nil {
		return ""
	}
	return a.intake.Addr()
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	if a.intake != nil {
		// Bind synchronously so a busy port fails Start instead of the supervisor.
		if err := a.intake.Listen(); err != nil {
			a.sup.Cancel()
			return err
		}
		a.sup.Go("intake.serve", a.intake.Serve)
	}
	if a.probe != nil {
		a.probe.Start()
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("relay started",
		logx.String("transport", a.cfg.Relay.Transport),
		logx.String("chat_id", a.cfg.Telegram.ChatID),
		logx.String("intake", a.IntakeAddr()),
		logx.Bool("probe", a.probe != nil),
	)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	defer func() {
		if a.logs != nil {
			_ = a.logs.Close()
		}
	}()
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	a.step(ctx, "probe", 2*time.Second, func(c context.Context) error {
		if a.probe != nil {
			return a.probe.Stop(c)
		}
		return nil
	})
	a.step(ctx, "intake", 3*time.Second, func(c context.Context) error {
		if a.intake != nil {
			return a.intake.Shutdown(c)
		}
		return nil
	})

	var err error
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error {
		err = a.sup.Wait(c)
		return err
	})

	a.log.Info("stopped")
	return err
}

// step runs one shutdown step bounded by max, never extending the
// caller's deadline. A step that overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapRelayConfig(cfg *config.Config) (relay.Config, error) {
	timeout, err := config.ParseDurationOrDefault("relay.timeout", cfg.Relay.Timeout, 10*time.Second)
	if err != nil {
		return relay.Config{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return relay.Config{}, err
	}
	return relay.Config{
		Endpoint:       relay.BotEndpoint(cfg.Telegram.APIURL, cfg.Telegram.Token),
		ChatID:         strings.TrimSpace(cfg.Telegram.ChatID),
		ParseMode:      cfg.Relay.ParseMode,
		EscapeMarkdown: cfg.Relay.EscapeMarkdown,
		Location:       loc,
		Timeout:        timeout,
	}, nil
}

func newSender(cfg *config.Config, rcfg relay.Config, log logx.Logger) (relay.Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Relay.Transport)) {
	case config.TransportTelebot:
		s, err := telegram.New(telegram.Config{
			Token:   cfg.Telegram.Token,
			APIURL:  cfg.Telegram.APIURL,
			Timeout: rcfg.Timeout,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return relay.NewHTTPSender(rcfg.Endpoint, &http.Client{Timeout: rcfg.Timeout}), nil
	}
}

func mapIntakeServerConfig(cfg *config.Config) (intake.ServerConfig, error) {
	rt, err := config.ParseDurationOrDefault("intake.read_timeout", cfg.Intake.ReadTimeout, 10*time.Second)
	if err != nil {
		return intake.ServerConfig{}, err
	}
	wt, err := config.ParseDurationOrDefault("intake.write_timeout", cfg.Intake.WriteTimeout, 30*time.Second)
	if err != nil {
		return intake.ServerConfig{}, err
	}
	return intake.ServerConfig{
		Addr:          cfg.Intake.Addr,
		Token:         cfg.Intake.Token,
		AllowInsecure: cfg.Intake.AllowInsecure,
		ReadTimeout:   rt,
		WriteTimeout:  wt,
	}, nil
}
