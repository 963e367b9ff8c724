package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"leasesign/internal/app"
	"leasesign/internal/checkpoint"
	"leasesign/internal/config"
	"leasesign/internal/devserver"
	"leasesign/internal/field"
	"leasesign/internal/logging"
	"leasesign/internal/signing"
	"leasesign/internal/wizard"
)

var stdout io.Writer = os.Stdout

// parseArgs accepts the token before or after the flags.
func parseArgs(fs *flag.FlagSet, args []string) (string, error) {
	var token string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		token, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if token == "" {
		token = fs.Arg(0)
	}
	if token == "" {
		return "", fmt.Errorf("usage: leasesign %s <token>", fs.Name())
	}
	return token, nil
}

func openShell(ctx context.Context, env *app.Env, token string) (*signing.Shell, error) {
	sh, err := env.NewShell(token, 1)
	if err != nil {
		return nil, err
	}
	if err := sh.Open(ctx); err != nil {
		return nil, err
	}
	return sh, nil
}

func cmdSession(ctx context.Context, env *app.Env, args []string) error {
	fs := flag.NewFlagSet("session", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print the view as JSON")
	token, err := parseArgs(fs, args)
	if err != nil {
		return err
	}

	sh, err := openShell(ctx, env, token)
	if err != nil {
		return err
	}
	defer sh.Close()
	v := sh.View()

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	fmt.Fprintf(stdout, "Document: %s\n", v.DocumentTitle)
	fmt.Fprintf(stdout, "Signer:   %s <%s>\n", v.SignerName, v.SignerEmail)
	if v.Resumed {
		fmt.Fprintf(stdout, "Resumed:  %s, %d%% complete\n", v.StepTitle, v.Progress.Rounded)
	}

	fmt.Fprintln(stdout, "\nOutline:")
	for _, sec := range v.Sections {
		fmt.Fprintf(stdout, "  %s%s\n", strings.Repeat("  ", max(sec.Level-1, 0)), sec.Title)
	}

	fmt.Fprintln(stdout, "\nFields:")
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ID\tTYPE\tREQUIRED\tSTATUS\tLABEL")
	for _, f := range v.Fields {
		status := "pending"
		if f.Completed {
			status = "done"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%t\t%s\t%s\n", f.ID, f.Type, f.Required, status, f.Label)
	}
	return tw.Flush()
}

// textValues collects repeated -text id=value flags.
type textValues map[string]string

func (t textValues) String() string {
	parts := make([]string, 0, len(t))
	for k, v := range t {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (t textValues) Set(s string) error {
	id, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(id) == "" {
		return fmt.Errorf("want id=value, got %q", s)
	}
	t[strings.TrimSpace(id)] = value
	return nil
}

func cmdSign(ctx context.Context, env *app.Env, args []string) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	sigPath := fs.String("signature", "", "image for signature fields")
	initPath := fs.String("initials", "", "image for initial fields")
	name := fs.String("name", "", "signer name")
	email := fs.String("email", "", "signer email")
	consent := fs.Bool("consent", false, "agree to sign electronically")
	texts := textValues{}
	fs.Var(texts, "text", "id=value for a date or text field (repeatable)")
	token, err := parseArgs(fs, args)
	if err != nil {
		return err
	}

	images := map[field.Type]image.Image{}
	for typ, path := range map[field.Type]string{field.TypeSignature: *sigPath, field.TypeInitial: *initPath} {
		if path == "" {
			continue
		}
		if images[typ], err = readImage(path); err != nil {
			return err
		}
	}

	sh, err := openShell(ctx, env, token)
	if err != nil {
		return err
	}
	defer sh.Close()

	if sh.Step() == wizard.StepReview {
		if err := sh.BeginSigning(); err != nil {
			return err
		}
	} else if sh.Step() == wizard.StepConfirm {
		if err := sh.Back(); err != nil {
			return err
		}
	}

	for _, f := range sh.Fields() {
		if err := fillField(ctx, sh, f, images, texts); err != nil {
			return fmt.Errorf("%s: %w", f.ID, err)
		}
	}
	for id := range texts {
		if _, ok := fieldByID(sh.Fields(), id); !ok {
			return fmt.Errorf("%s: %w", id, &signing.ValidationError{Reason: signing.ReasonUnknownField})
		}
	}

	if err := sh.Confirm(); err != nil {
		return err
	}
	if *name != "" || *email != "" {
		v := sh.View()
		n, e := v.SignerName, v.SignerEmail
		if *name != "" {
			n = *name
		}
		if *email != "" {
			e = *email
		}
		sh.SetSigner(n, e)
	}
	sh.SetConsent(*consent)

	if err := sh.Submit(ctx); err != nil {
		return err
	}
	v := sh.View()
	fmt.Fprintf(stdout, "Signed %q as %s.\n", v.DocumentTitle, v.SignerName)
	return nil
}

func fillField(ctx context.Context, sh *signing.Shell, f field.Field, images map[field.Type]image.Image, texts textValues) error {
	if text, ok := texts[f.ID]; ok {
		if f.Completed {
			sh.ResetField(ctx, f.ID)
		}
		return sh.SetValue(ctx, f.ID, text)
	}
	if f.Completed {
		return nil
	}
	if !f.Type.Drawn() {
		if f.Required {
			return fmt.Errorf("no value given (use -text %s=...)", f.ID)
		}
		return nil
	}
	img, ok := images[f.Type]
	if !ok {
		if !f.Required {
			return nil
		}
		return fmt.Errorf("no image given (use -%s)", map[field.Type]string{
			field.TypeSignature: "signature", field.TypeInitial: "initials",
		}[f.Type])
	}
	if !sh.GoToFieldID(f.ID) {
		return &signing.ValidationError{Reason: signing.ReasonUnknownField}
	}
	sh.Pad().LoadImage(img)
	return sh.AdoptSignature(ctx)
}

func fieldByID(fields []field.Field, id string) (field.Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return field.Field{}, false
}

func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func cmdProgress(ctx context.Context, env *app.Env, args []string) error {
	fs := flag.NewFlagSet("progress", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print the checkpoint as JSON")
	token, err := parseArgs(fs, args)
	if err != nil {
		return err
	}

	var snap wizard.Snapshot
	savedAt, err := env.Journal.Load(ctx, token, &snap)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		fmt.Fprintln(stdout, "No saved progress.")
		return nil
	case errors.Is(err, checkpoint.ErrExpired):
		fmt.Fprintln(stdout, "Saved progress has expired.")
		return nil
	case err != nil:
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			SavedAt time.Time `json:"savedAt"`
			wizard.Snapshot
		}{savedAt, snap})
	}

	completed := 0
	for _, f := range snap.Fields {
		if f.Completed {
			completed++
		}
	}
	fmt.Fprintf(stdout, "Saved:     %s\n", savedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(stdout, "Expires:   %s\n", savedAt.Add(env.Journal.TTL()).Local().Format(time.RFC1123))
	fmt.Fprintf(stdout, "Step:      %s\n", snap.Step.Title())
	fmt.Fprintf(stdout, "Completed: %d of %d fields\n", completed, len(snap.Fields))
	for _, f := range snap.Fields {
		mark := " "
		if f.Completed {
			mark = "x"
		}
		fmt.Fprintf(stdout, "  [%s] %s\n", mark, f.ID)
	}
	return nil
}

func cmdClear(ctx context.Context, env *app.Env, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	token, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := env.Journal.Clear(ctx, token); err != nil {
		return err
	}
	env.Audit.SetSession(token)
	env.Audit.LogCheckpointCleared(ctx, "cli")
	fmt.Fprintln(stdout, "Saved progress cleared.")
	return nil
}

func cmdDevServer(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("dev-server", flag.ContinueOnError)
	addr := fs.String("addr", cfg.DevServer.Addr, "listen address")
	latency := fs.Duration("latency", 0, "delay added to every response")
	referenced := fs.Bool("by-reference", false, "serve the demo document by URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lc, err := cfg.LoggingConfig()
	if err != nil {
		return err
	}
	lc.Output = "stderr"
	log := logging.NewWithWriter(os.Stderr, lc)

	opts := []devserver.Option{devserver.WithLogger(log.Logger), devserver.WithLatency(*latency)}
	if cfg.Service.BearerToken != "" {
		opts = append(opts, devserver.WithBearerToken(cfg.Service.BearerToken))
	}
	srv := devserver.New(opts...)
	srv.LoadDemo(!*referenced)

	fmt.Fprintf(stdout, "Serving demo lease on http://%s (token %q)\n", *addr, devserver.DemoToken)
	return srv.ListenAndServe(ctx, *addr)
}
