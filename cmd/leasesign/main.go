// leasesign is the headless lease signing CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"leasesign/internal/app"
	"leasesign/internal/config"
	"leasesign/internal/gateway"
	"leasesign/internal/signing"
)

var (
	configPath = flag.String("config", "", "path to config file")
	auditPath  = flag.String("audit", "", "audit trail path (\"-\" disables)")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, flag.Arg(0), flag.Args()[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errorMessage(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "session":
		return withEnv(ctx, false, func(env *app.Env) error { return cmdSession(ctx, env, args) })
	case "sign":
		return withEnv(ctx, true, func(env *app.Env) error { return cmdSign(ctx, env, args) })
	case "progress":
		return withEnv(ctx, false, func(env *app.Env) error { return cmdProgress(ctx, env, args) })
	case "clear":
		return withEnv(ctx, false, func(env *app.Env) error { return cmdClear(ctx, env, args) })
	case "dev-server":
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return cmdDevServer(ctx, cfg, args)
	case "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `leasesign - sign lease documents from the command line

Usage: leasesign [options] <command> [args]

Commands:
  session  <token>    Print signer, document outline and fields
  sign     <token>    Complete every field and submit
                        -signature <png>  image for signature fields
                        -initials <png>   image for initial fields
                        -text id=value    value for a date or text field (repeatable)
                        -name, -email     signer identity (default: from session)
                        -consent          agree to sign electronically
  progress <token>    Show the stored checkpoint
  clear    <token>    Delete the stored checkpoint
  dev-server          Run the local development service [-addr host:port]
  help                Show this help message

Options:
  -config <path>  Path to config file
  -audit <path>   Audit trail path ("-" disables)`)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var verrs config.ValidationErrors
	if err := cfg.Validate(); errors.As(err, &verrs) {
		for _, w := range verrs.Warnings() {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", w.Error())
		}
		if verrs.HasErrors() {
			return nil, verrs.Errors()
		}
	}
	return cfg, nil
}

func withEnv(ctx context.Context, notify bool, fn func(*app.Env) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	env, err := app.Open(ctx, cfg, app.Options{AuditPath: *auditPath, DesktopNotify: notify})
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(env)
}

// errorMessage prefers the signer-facing text of typed errors.
func errorMessage(err error) string {
	var (
		loadErr   *gateway.SessionLoadError
		submitErr *gateway.SubmissionError
		valErr    *signing.ValidationError
	)
	if errors.As(err, &loadErr) || errors.As(err, &submitErr) || errors.As(err, &valErr) ||
		errors.Is(err, signing.ErrSubmitInProgress) {
		return signing.UserMessage(err)
	}
	return err.Error()
}
