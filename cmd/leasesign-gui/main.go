// leasesign-gui is the desktop signing modal.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"

	"gioui.org/app"
	"gioui.org/io/system"
	"gioui.org/op"
	"gioui.org/unit"
	"gioui.org/widget/material"

	"leasesign/cmd/leasesign-gui/internal/theme"
	"leasesign/cmd/leasesign-gui/internal/ui"
	leaseapp "leasesign/internal/app"
	"leasesign/internal/config"
	"leasesign/internal/devserver"
	"leasesign/internal/logging"
	"leasesign/internal/signing"
)

var (
	configPath = flag.String("config", "", "path to config file")
	token      = flag.String("token", "", "signing token")
	dev        = flag.Bool("dev", false, "serve the demo lease locally and sign it")
)

func main() {
	flag.Parse()

	go func() {
		code := 0
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			code = 1
		}
		os.Exit(code)
	}()
	app.Main()
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := *configPath
	if path == "" {
		if path = config.FindConfigFile(); path == "" {
			path = config.ConfigPath()
		}
	}
	loader := config.NewLoader(path)
	defer loader.Close()
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	tok := *token
	if *dev {
		base, err := startDevServer(ctx)
		if err != nil {
			return err
		}
		cfg.Service.BaseURL = base
		if tok == "" {
			tok = devserver.DemoToken
		}
	}
	if tok == "" {
		return fmt.Errorf("no signing token: pass -token or -dev")
	}

	env, err := leaseapp.Open(ctx, cfg, leaseapp.Options{DesktopNotify: true})
	if err != nil {
		return err
	}
	defer env.Close()
	log := env.Log.WithComponent("gui")

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		Component: "leasesign-gui",
		Logger:    log,
	})
	crash.SetSession(tok)

	w := new(app.Window)
	w.Option(app.Title("Sign lease"))
	w.Option(app.Size(unit.Dp(cfg.GUI.Width), unit.Dp(cfg.GUI.Height)))

	var modal *ui.Modal
	sh, err := env.NewShell(tok, 1, signing.WithOnChange(func() {
		if modal != nil {
			modal.Changed()
		}
		w.Invalidate()
	}))
	if err != nil {
		return err
	}
	modal = ui.NewModal(ctx, theme.NewTheme(material.NewTheme()), sh, crash.Go, func() {
		w.Perform(system.ActionClose)
	})

	watchConfig(loader, env, sh, log)

	crash.Go("open", func() {
		if err := sh.Open(ctx); err != nil {
			log.Warn("session open failed", "error", err)
		}
	})

	var ops op.Ops
	for {
		switch e := w.Event().(type) {
		case app.DestroyEvent:
			sh.Close()
			return e.Err
		case app.FrameEvent:
			gtx := app.NewContext(&ops, e)
			crash.Recover(func() { modal.Layout(gtx) })
			e.Frame(gtx.Ops)
		}
	}
}

// startDevServer serves the demo lease on a free loopback port.
func startDevServer(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	srv := devserver.New()
	srv.LoadDemo(false)
	go srv.Serve(ctx, ln)
	return "http://" + ln.Addr().String(), nil
}

// watchConfig applies pen changes live and records every reload in the
// audit trail. Service and storage settings take effect on next start.
func watchConfig(loader *config.Loader, env *leaseapp.Env, sh *signing.Shell, log *logging.Logger) {
	loader.OnChange(func(old, cfg *config.Config) {
		ctx := context.Background()
		if old != nil && old.Signing.StrokeColor != cfg.Signing.StrokeColor {
			env.Audit.LogConfigChange(ctx, "signing.stroke_color", old.Signing.StrokeColor, cfg.Signing.StrokeColor)
		}
		if style, err := cfg.StrokeStyle(); err == nil {
			sh.Pad().SetStyle(style)
		}
		log.Info("configuration reloaded", "path", loader.Path())
	})
	if err := loader.Watch(); err != nil {
		log.Debug("config watch unavailable", "error", err)
		return
	}
	go func() {
		for err := range loader.Errors() {
			log.Warn("config reload failed", "error", err)
		}
	}()
}
