package signing_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasesign/internal/checkpoint"
	"leasesign/internal/devserver"
	"leasesign/internal/field"
	"leasesign/internal/gateway"
	"leasesign/internal/logging"
	"leasesign/internal/notify"
	"leasesign/internal/outline"
	"leasesign/internal/signing"
	"leasesign/internal/stroke"
	"leasesign/internal/wizard"
)

type env struct {
	dev     *devserver.Server
	client  *gateway.Client
	journal *checkpoint.Journal
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dev := devserver.New()
	srv := httptest.NewServer(dev.Handler())
	t.Cleanup(srv.Close)

	client, err := gateway.New(srv.URL, gateway.WithSubmitRate(0, 0))
	require.NoError(t, err)
	return &env{
		dev:     dev,
		client:  client,
		journal: checkpoint.NewJournal(checkpoint.NewMemoryStore(), 0),
	}
}

func (e *env) shell(token string, opts ...signing.Option) *signing.Shell {
	opts = append([]signing.Option{signing.WithJournal(e.journal)}, opts...)
	return signing.New(token, e.client, opts...)
}

func twoSignatureSession() gateway.Session {
	return gateway.Session{
		DocumentTitle:   "Parking Addendum",
		DocumentContent: `<h1>Parking Addendum</h1><h2>1. Space</h2><p>Space 14 is assigned to the tenant.</p><h2>2. Signatures</h2><p>Both tenants sign below.</p>`,
		SignerName:      "Jordan Avery",
		SignerEmail:     "jordan.avery@example.com",
		Fields: []field.Field{
			{ID: "tenant-signature", Type: field.TypeSignature, Label: "Tenant signature", SectionContext: "2. Signatures", Required: true},
			{ID: "cotenant-signature", Type: field.TypeSignature, Label: "Co-tenant signature", SectionContext: "2. Signatures", Required: true},
		},
	}
}

// draw makes one committed stroke across the pad.
func draw(p *stroke.Pad) {
	p.PointerDown(1, stroke.Point{X: 20, Y: 80})
	for i := 1; i <= 10; i++ {
		p.PointerMove(1, stroke.Point{X: 20 + float32(i)*30, Y: 80 + float32(i%3)*12})
	}
	p.PointerUp(1, stroke.Point{X: 350, Y: 90})
}

func signCurrent(t *testing.T, s *signing.Shell) {
	t.Helper()
	draw(s.Pad())
	require.False(t, s.Pad().IsEmpty())
	require.NoError(t, s.AdoptSignature(context.Background()))
}

func hasCheckpoint(t *testing.T, j *checkpoint.Journal, token string) bool {
	t.Helper()
	var snap wizard.Snapshot
	_, err := j.Load(context.Background(), token, &snap)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestSubmitTwoSignaturesClearsCheckpoint(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.dev.AddSession("t7", twoSignatureSession())
	var sent notify.Memory
	s := e.shell("t7", signing.WithNotifier(&sent))

	require.NoError(t, s.Open(ctx))
	assert.Equal(t, signing.PhaseReady, s.Phase())
	assert.Equal(t, wizard.StepReview, s.Step())
	assert.True(t, s.Pad().Disabled())

	require.NoError(t, s.BeginSigning())
	assert.False(t, s.Pad().Disabled())
	signCurrent(t, s)
	assert.True(t, hasCheckpoint(t, e.journal, "t7"))

	err := s.Confirm()
	var verr *signing.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, signing.ReasonIncomplete, verr.Reason)
	require.Len(t, verr.Missing, 1)
	assert.Equal(t, "cotenant-signature", verr.Missing[0].ID)
	assert.ErrorIs(t, err, wizard.ErrInvalidTransition)
	var inc *wizard.IncompleteError
	assert.ErrorAs(t, err, &inc)
	assert.Equal(t, wizard.StepSign, s.Step())

	require.True(t, s.NextIncomplete())
	assert.True(t, s.Pad().IsEmpty(), "pad is cleared for an unsigned field")
	signCurrent(t, s)
	require.NoError(t, s.Confirm())
	assert.Equal(t, 100, s.View().Progress.Rounded)

	var cerr *signing.ValidationError
	require.ErrorAs(t, s.CanSubmit(), &cerr)
	assert.Equal(t, signing.ReasonConsent, cerr.Reason)
	s.SetConsent(true)
	require.NoError(t, s.CanSubmit())

	require.NoError(t, s.Submit(ctx))
	assert.Equal(t, signing.PhaseSubmitted, s.Phase())
	assert.False(t, hasCheckpoint(t, e.journal, "t7"))

	got := e.dev.Submissions("t7")
	require.Len(t, got, 1)
	sub := got[0].Submission
	assert.True(t, strings.HasPrefix(sub.SignatureImage, "data:image/png;base64,"))
	assert.True(t, sub.Consent)
	assert.Equal(t, "Jordan Avery", sub.SignerName)
	require.Len(t, sub.InitialsData, 1)
	assert.Equal(t, "cotenant-signature", sub.InitialsData[0].ID)
	assert.Equal(t, s.IdempotencyKey(), got[0].IdempotencyKey)

	require.Len(t, sent.Sent(), 1)
	assert.Contains(t, sent.Sent()[0].Body, "Parking Addendum")
}

func TestSubmitFailureKeepsStateAndRetries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.dev.AddSession("t8", twoSignatureSession())
	s := e.shell("t8")

	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.BeginSigning())
	signCurrent(t, s)
	s.NextField()
	signCurrent(t, s)
	require.NoError(t, s.Confirm())
	s.SetConsent(true)

	e.dev.FailNextSubmit("t8", http.StatusBadGateway, "The lease service is temporarily unavailable.")
	err := s.Submit(ctx)
	var serr *gateway.SubmissionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadGateway, serr.Status)
	assert.True(t, serr.Temporary())

	assert.Equal(t, signing.PhaseReady, s.Phase())
	assert.Equal(t, wizard.StepConfirm, s.Step())
	v := s.View()
	assert.Equal(t, "The lease service is temporarily unavailable.", v.Error)
	assert.True(t, v.CanSubmit)
	for _, f := range s.Fields() {
		assert.True(t, f.Completed, f.ID)
		require.NotNil(t, f.Value)
	}
	assert.True(t, hasCheckpoint(t, e.journal, "t8"))

	require.NoError(t, s.Submit(ctx))
	assert.Equal(t, signing.PhaseSubmitted, s.Phase())
	assert.Equal(t, 2, s.Attempts())
	assert.NoError(t, s.Err())
	assert.Empty(t, s.View().Error)
	require.Len(t, e.dev.Submissions("t8"), 1)
	assert.Equal(t, s.IdempotencyKey(), e.dev.Submissions("t8")[0].IdempotencyKey)
}

func TestLoadFailure(t *testing.T) {
	e := newEnv(t)
	s := e.shell("no-such-token")

	err := s.Open(context.Background())
	var lerr *gateway.SessionLoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, http.StatusNotFound, lerr.Status)
	assert.Equal(t, signing.PhaseFailed, s.Phase())
	assert.NotEmpty(t, s.View().Error)
	assert.ErrorIs(t, s.BeginSigning(), signing.ErrNotReady)

	e.dev.AddSession("no-such-token", twoSignatureSession())
	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, signing.PhaseReady, s.Phase())
	assert.Empty(t, s.View().Error)
}

func TestExpiredSessionIsRefused(t *testing.T) {
	e := newEnv(t)
	sess := twoSignatureSession()
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	sess.ExpiresAt = &past
	e.dev.AddSession("old", sess)

	err := e.shell("old").Open(context.Background())
	var lerr *gateway.SessionLoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, http.StatusGone, lerr.Status)
}

func TestDemoLeaseByReferenceWithAutoDate(t *testing.T) {
	e := newEnv(t)
	e.dev.LoadDemo(false)
	now := time.Date(2026, 10, 17, 15, 4, 0, 0, time.UTC)
	s := e.shell(devserver.DemoToken,
		signing.WithAutoDate("2006-01-02"),
		signing.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, s.Open(context.Background()))

	v := s.View()
	assert.Equal(t, "Residential Lease Agreement", v.DocumentTitle)
	require.NotEmpty(t, v.Sections)
	assert.NotEmpty(t, v.ActiveSection)
	ids := make(map[string]bool)
	for _, sec := range v.Sections {
		ids[sec.ID] = true
	}
	assert.True(t, ids["premises"])

	date, ok := fieldByID(s.Fields(), "sign-date")
	require.True(t, ok)
	assert.True(t, date.Completed)
	assert.Equal(t, "2026-10-17", *date.Value)
	assert.Equal(t, []string{"rent-initials", "deposit-initials", "tenant-signature"}, v.Missing)
}

func TestDemoLeaseFullFlow(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.dev.LoadDemo(true)
	s := e.shell(devserver.DemoToken, signing.WithAutoDate("Jan 2, 2006"))
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.BeginSigning())

	for _, id := range []string{"rent-initials", "deposit-initials", "tenant-signature"} {
		require.True(t, s.GoToFieldID(id))
		signCurrent(t, s)
	}
	var verr *signing.ValidationError
	require.ErrorAs(t, s.SetValue(ctx, "pet-ack", "  "), &verr)
	assert.Equal(t, signing.ReasonEmptyValue, verr.Reason)
	require.NoError(t, s.SetValue(ctx, "pet-ack", "One cat"))
	require.ErrorAs(t, s.SetValue(ctx, "tenant-signature", "x"), &verr)
	assert.Equal(t, signing.ReasonPadOnly, verr.Reason)

	require.NoError(t, s.Confirm())
	s.SetConsent(true)
	require.NoError(t, s.Submit(ctx))

	sub := e.dev.Submissions(devserver.DemoToken)[0].Submission
	assert.Len(t, sub.InitialsData, 2)
	values := make(map[string]string)
	for _, fv := range sub.FieldValues {
		values[fv.ID] = fv.Value
	}
	assert.Equal(t, "One cat", values["pet-ack"])
	assert.NotEmpty(t, values["sign-date"])
}

func fieldByID(fields []field.Field, id string) (field.Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return field.Field{}, false
}

func TestResumeRestoresProgressAndPad(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.dev.AddSession("resume", twoSignatureSession())

	first := e.shell("resume")
	require.NoError(t, first.Open(ctx))
	require.NoError(t, first.BeginSigning())
	signCurrent(t, first)
	first.Close()
	assert.Equal(t, signing.PhaseClosed, first.Phase())
	assert.ErrorIs(t, first.Open(ctx), signing.ErrClosed)

	second := e.shell("resume")
	require.NoError(t, second.Open(ctx))
	v := second.View()
	assert.True(t, v.Resumed)
	assert.Equal(t, wizard.StepSign, v.Step)
	assert.Equal(t, 1, v.Progress.CompletedRequired)
	assert.False(t, second.Pad().IsEmpty(), "stored signature is loaded into the pad")

	second.NextField()
	assert.True(t, second.Pad().IsEmpty())
	second.PrevField()
	assert.False(t, second.Pad().IsEmpty())
}

func TestResetFieldInConfirmReturnsToSign(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.dev.AddSession("reset", twoSignatureSession())
	s := e.shell("reset")
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.BeginSigning())
	signCurrent(t, s)
	s.NextField()
	signCurrent(t, s)
	require.NoError(t, s.Confirm())

	require.True(t, s.ResetField(ctx, "tenant-signature"))
	assert.Equal(t, wizard.StepSign, s.Step())
	assert.False(t, s.ResetField(ctx, "tenant-signature"))
	assert.Equal(t, []string{"tenant-signature"}, s.View().Missing)
}

func TestAdoptSignatureValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.dev.LoadDemo(true)
	s := e.shell(devserver.DemoToken)
	require.NoError(t, s.Open(ctx))

	var verr *signing.ValidationError
	require.ErrorAs(t, s.AdoptSignature(ctx), &verr)
	assert.Equal(t, signing.ReasonWrongStep, verr.Reason)

	require.NoError(t, s.BeginSigning())
	require.ErrorAs(t, s.AdoptSignature(ctx), &verr)
	assert.Equal(t, signing.ReasonEmptyPad, verr.Reason)

	require.True(t, s.GoToFieldID("pet-ack"))
	assert.True(t, s.Pad().Disabled())
	require.ErrorAs(t, s.AdoptSignature(ctx), &verr)
	assert.Equal(t, signing.ReasonNotDrawn, verr.Reason)
}

func TestViewTracksScrollAndFieldSection(t *testing.T) {
	e := newEnv(t)
	e.dev.AddSession("scroll", twoSignatureSession())
	s := e.shell("scroll", signing.WithMeasurer(outline.MeasureFunc(func(outline.Block) float32 { return 200 })))
	require.NoError(t, s.Open(context.Background()))

	doc := s.Document()
	require.NotNil(t, doc)
	secs := doc.Sections()
	require.Len(t, secs, 3)

	s.SetViewport(outline.Viewport{ScrollTop: 0, ClientHeight: 300, ScrollHeight: doc.Height()})
	v := s.View()
	assert.Equal(t, secs[0].ID, v.ActiveSection)
	assert.Equal(t, secs[2].ID, v.FieldSection)
	assert.Equal(t, float32(0), v.ScrollProgress)

	sc, ok := s.ScrollToCurrentField()
	require.True(t, ok)
	assert.True(t, sc.Tick(time.Now().Add(time.Minute)))
	v = s.View()
	assert.Equal(t, secs[2].ID, v.ActiveSection)
	assert.Greater(t, v.ScrollProgress, float32(0))

	_, ok = s.ScrollToSection("missing")
	assert.False(t, ok)
}

// blockingGateway serves twoSignatureSession and can hold calls until a
// gate is closed.
type blockingGateway struct {
	loadGate   chan struct{}
	submitGate chan struct{}
	entered    chan string
	submits    atomic.Int32
}

func newBlockingGateway(blockLoad, blockSubmit bool) *blockingGateway {
	g := &blockingGateway{entered: make(chan string, 8)}
	if blockLoad {
		g.loadGate = make(chan struct{})
	}
	if blockSubmit {
		g.submitGate = make(chan struct{})
	}
	return g
}

func (g *blockingGateway) LoadSession(ctx context.Context, token string) (*gateway.Session, error) {
	if g.loadGate != nil {
		g.entered <- "load"
		<-g.loadGate
	}
	s := twoSignatureSession()
	return &s, nil
}

func (g *blockingGateway) FetchDocument(_ context.Context, s *gateway.Session) (string, error) {
	return s.DocumentContent, nil
}

func (g *blockingGateway) SubmitSignature(ctx context.Context, token string, sub gateway.Submission, key string) error {
	g.submits.Add(1)
	if g.submitGate != nil {
		g.entered <- "submit"
		<-g.submitGate
	}
	return nil
}

func TestCloseDropsStaleLoad(t *testing.T) {
	g := newBlockingGateway(true, false)
	s := signing.New("stale", g)

	done := make(chan error, 1)
	go func() { done <- s.Open(context.Background()) }()
	assert.Equal(t, "load", <-g.entered)
	s.Close()
	close(g.loadGate)

	assert.ErrorIs(t, <-done, signing.ErrClosed)
	assert.Equal(t, signing.PhaseClosed, s.Phase())
	assert.Empty(t, s.Fields())
}

func TestCloseDropsStaleSubmit(t *testing.T) {
	ctx := context.Background()
	g := newBlockingGateway(false, true)
	journal := checkpoint.NewJournal(checkpoint.NewMemoryStore(), 0)
	s := signing.New("stale-submit", g, signing.WithJournal(journal))
	readyToSubmit(t, s)

	done := make(chan error, 1)
	go func() { done <- s.Submit(ctx) }()
	assert.Equal(t, "submit", <-g.entered)
	s.Close()
	close(g.submitGate)

	assert.ErrorIs(t, <-done, signing.ErrClosed)
	assert.Equal(t, signing.PhaseClosed, s.Phase())
	assert.True(t, hasCheckpoint(t, journal, "stale-submit"), "closing keeps the checkpoint")
}

func readyToSubmit(t *testing.T, s *signing.Shell) {
	t.Helper()
	require.NoError(t, s.Open(context.Background()))
	require.NoError(t, s.BeginSigning())
	signCurrent(t, s)
	s.NextField()
	signCurrent(t, s)
	require.NoError(t, s.Confirm())
	s.SetConsent(true)
}

func TestDuplicateSubmitIsRefused(t *testing.T) {
	ctx := context.Background()
	g := newBlockingGateway(false, true)
	s := signing.New("dup", g)
	readyToSubmit(t, s)

	var (
		wg    sync.WaitGroup
		first error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = s.Submit(ctx)
	}()
	assert.Equal(t, "submit", <-g.entered)
	assert.True(t, s.View().Submitting)
	assert.ErrorIs(t, s.Submit(ctx), signing.ErrSubmitInProgress)
	assert.ErrorIs(t, s.Back(), signing.ErrSubmitInProgress)

	close(g.submitGate)
	wg.Wait()
	require.NoError(t, first)
	assert.Equal(t, int32(1), g.submits.Load())
	assert.Equal(t, signing.PhaseSubmitted, s.Phase())
}

func TestAuditTrailNeverContainsToken(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	token := "secret-signing-token"
	e.dev.AddSession(token, twoSignatureSession())

	var audit, logs bytes.Buffer
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LevelDebug
	s := e.shell(token,
		signing.WithAudit(logging.NewAuditWriter(&audit, "leasesign")),
		signing.WithLogger(logging.NewWithWriter(&logs, cfg)),
	)
	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.BeginSigning())
	signCurrent(t, s)

	for _, out := range []string{audit.String(), logs.String()} {
		assert.NotContains(t, out, token)
		assert.NotContains(t, out, "base64")
	}
	assert.Contains(t, audit.String(), `"event_type":"session_loaded"`)
	assert.Contains(t, audit.String(), `"event_type":"step_changed"`)
	assert.Contains(t, audit.String(), `"event_type":"field_completed"`)
	assert.Contains(t, logs.String(), logging.Ref(token))
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, signing.UserMessage(nil))
	assert.Equal(t, "boom", signing.UserMessage(&gateway.SubmissionError{Message: "boom"}))
	assert.Equal(t, "gone", signing.UserMessage(&gateway.SessionLoadError{Message: "gone"}))
	assert.Contains(t, signing.UserMessage(&signing.ValidationError{Reason: signing.ReasonConsent}), "agree")
	assert.NotEmpty(t, signing.UserMessage(errors.New("x")))
}
