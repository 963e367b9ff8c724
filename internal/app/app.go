// Package app assembles the signing runtime from configuration: logger,
// audit trail, gateway client, checkpoint journal and notifier.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"leasesign/internal/checkpoint"
	"leasesign/internal/config"
	"leasesign/internal/gateway"
	"leasesign/internal/logging"
	"leasesign/internal/notify"
	"leasesign/internal/signing"
)

// Env is a configured runtime. Close releases everything it opened.
type Env struct {
	Config   *config.Config
	Log      *logging.Logger
	Audit    *logging.AuditLogger
	Gateway  *gateway.Client
	Store    checkpoint.Store
	Journal  *checkpoint.Journal
	Notifier notify.Notifier

	closers []io.Closer
}

// Options adjusts how an Env is built.
type Options struct {
	// AuditPath overrides the audit trail location. "-" disables it.
	AuditPath string
	// DesktopNotify sends a desktop notification after submission.
	DesktopNotify bool
	// LogWriter replaces the configured log output.
	LogWriter io.Writer
}

// Open builds an Env from cfg.
func Open(ctx context.Context, cfg *config.Config, opts Options) (_ *Env, err error) {
	env := &Env{Config: cfg, Notifier: notify.Nop}
	defer func() {
		if err != nil {
			env.Close()
		}
	}()

	lc, err := cfg.LoggingConfig()
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	if opts.LogWriter != nil {
		env.Log = logging.NewWithWriter(opts.LogWriter, lc)
	} else {
		if env.Log, err = logging.New(lc); err != nil {
			return nil, err
		}
		env.closers = append(env.closers, env.Log)
	}

	if opts.AuditPath != "-" {
		ac := logging.DefaultAuditConfig()
		if opts.AuditPath != "" {
			ac.FilePath = opts.AuditPath
		}
		if env.Audit, err = logging.NewAuditLogger(ac); err != nil {
			return nil, err
		}
		env.closers = append(env.closers, env.Audit)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	if env.Store, err = checkpoint.Open(ctx, cfg.CheckpointOptions()); err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	env.closers = append(env.closers, env.Store)
	env.Journal = checkpoint.NewJournal(env.Store, cfg.CheckpointTTL())

	if env.Gateway, err = gateway.New(cfg.Service.BaseURL, cfg.GatewayOptions()...); err != nil {
		return nil, err
	}

	if opts.DesktopNotify {
		env.Notifier = notify.New("leasesign")
	}

	env.Log.Debug("runtime ready",
		"base_url", cfg.Service.BaseURL,
		"checkpoint_backend", cfg.Checkpoint.Backend,
	)
	return env, nil
}

// NewShell creates a signing shell for token wired to the runtime. extra
// options are applied after the configured ones. ratio is the display's
// pixel ratio.
func (e *Env) NewShell(token string, ratio float32, extra ...signing.Option) (*signing.Shell, error) {
	opts, err := e.Config.SigningOptions(ratio)
	if err != nil {
		return nil, err
	}
	opts = append(opts,
		signing.WithJournal(e.Journal),
		signing.WithLogger(e.Log),
		signing.WithAudit(e.Audit),
		signing.WithNotifier(e.Notifier),
	)
	return signing.New(token, e.Gateway, append(opts, extra...)...), nil
}

// Close releases resources in reverse order of acquisition.
func (e *Env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
