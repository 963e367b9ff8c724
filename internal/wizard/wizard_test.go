package wizard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasesign/internal/checkpoint"
	"leasesign/internal/field"
)

func threeRequired() []field.Field {
	return []field.Field{
		{ID: "sig", Type: field.TypeSignature, Label: "Tenant signature", Required: true},
		{ID: "init", Type: field.TypeInitial, Label: "Initials", Required: true},
		{ID: "date", Type: field.TypeDate, Label: "Date", Required: true},
		{ID: "note", Type: field.TypeText, Label: "Note"},
	}
}

func newJournaled(t *testing.T, token string) (*Wizard, *checkpoint.Journal) {
	t.Helper()
	j := checkpoint.NewJournal(checkpoint.NewMemoryStore(), time.Hour)
	w := New(token, WithJournal(j), WithSaveErrorHandler(func(err error) {
		t.Errorf("unexpected save error: %v", err)
	}))
	return w, j
}

func TestInitialState(t *testing.T) {
	w := New("tok")
	assert.Equal(t, StepReview, w.Step())
	assert.Equal(t, 0, w.CurrentIndex())
	assert.Empty(t, w.Fields())
	assert.Equal(t, "tok", w.Token())
}

func TestTransitions(t *testing.T) {
	w := New("tok")
	w.Initialize(threeRequired())

	assert.ErrorIs(t, w.Back(), ErrInvalidTransition)
	assert.ErrorIs(t, w.Confirm(), ErrInvalidTransition, "confirm is not reachable from review")

	require.NoError(t, w.BeginSigning())
	assert.Equal(t, StepSign, w.Step())
	assert.ErrorIs(t, w.BeginSigning(), ErrInvalidTransition)

	require.NoError(t, w.Back())
	assert.Equal(t, StepReview, w.Step())
	require.NoError(t, w.BeginSigning())

	err := w.Confirm()
	var inc *IncompleteError
	require.ErrorAs(t, err, &inc)
	assert.Len(t, inc.Missing, 3)
	assert.Contains(t, err.Error(), "Tenant signature")
	assert.Equal(t, StepSign, w.Step())

	w.CompleteField("sig", "data:image/png;base64,AA")
	w.CompleteField("init", "data:image/png;base64,BB")
	w.CompleteField("date", "2026-10-17")
	require.NoError(t, w.Confirm(), "optional fields never block")
	assert.Equal(t, StepConfirm, w.Step())

	require.NoError(t, w.Back())
	assert.Equal(t, StepSign, w.Step())
}

func TestStepListener(t *testing.T) {
	var got [][2]Step
	w := New("tok", WithStepListener(func(from, to Step) {
		got = append(got, [2]Step{from, to})
	}))
	w.Initialize([]field.Field{{ID: "a", Required: true}})

	w.BeginSigning()
	w.Confirm() // rejected, no event
	w.CompleteField("a", "x")
	w.Confirm()
	w.ResetField("a")

	assert.Equal(t, [][2]Step{
		{StepReview, StepSign},
		{StepSign, StepConfirm},
		{StepConfirm, StepSign},
	}, got)
}

func TestFieldNavigation(t *testing.T) {
	w := New("tok")
	w.Initialize(threeRequired())

	assert.Equal(t, 2, w.GoToField(2))
	assert.Equal(t, 3, w.GoToField(99), "clamped to last")
	assert.Equal(t, 0, w.GoToField(-5), "clamped to first")

	assert.Equal(t, 1, w.NextField())
	assert.Equal(t, 2, w.NextField())
	assert.Equal(t, 3, w.NextField())
	assert.Equal(t, 3, w.NextField())
	assert.Equal(t, 2, w.PrevField())

	f, ok := w.CurrentField()
	require.True(t, ok)
	assert.Equal(t, "date", f.ID)

	assert.True(t, w.CompleteCurrent("2026-10-17"))
	i, ok := w.NextIncomplete()
	assert.True(t, ok)
	assert.Equal(t, 3, i)

	w.CompleteField("note", "n")
	w.CompleteField("sig", "s")
	w.CompleteField("init", "i")
	_, ok = w.NextIncomplete()
	assert.False(t, ok)
}

func TestNavigationWithNoFields(t *testing.T) {
	w := New("tok")
	assert.Equal(t, 0, w.GoToField(3))
	_, ok := w.CurrentField()
	assert.False(t, ok)
	assert.False(t, w.CompleteCurrent("x"))
	require.NoError(t, w.BeginSigning())
	require.NoError(t, w.Confirm(), "nothing required")
}

func TestCompleteFieldIgnoresUnknown(t *testing.T) {
	w := New("tok")
	w.Initialize(threeRequired())
	before := w.Fields()
	assert.False(t, w.CompleteField("missing", "x"))
	assert.False(t, w.CompleteField("sig", ""))
	assert.Equal(t, before, w.Fields())
}

func TestResetFieldInConfirmReturnsToSign(t *testing.T) {
	w := New("tok")
	w.Initialize([]field.Field{
		{ID: "a", Required: true},
		{ID: "opt"},
	})
	w.BeginSigning()
	w.CompleteField("a", "x")
	w.CompleteField("opt", "y")
	require.NoError(t, w.Confirm())

	w.ResetField("opt")
	assert.Equal(t, StepConfirm, w.Step(), "optional field does not affect confirm")

	w.ResetField("a")
	assert.Equal(t, StepSign, w.Step())
	assert.False(t, w.AllComplete())
	assert.Len(t, w.Missing(), 1)
}

func TestResetEmptyFieldIsNoop(t *testing.T) {
	w, j := newJournaled(t, "tok")
	w.Initialize(threeRequired())
	w.BeginSigning()
	require.NoError(t, j.Clear(context.Background(), "tok"))

	assert.False(t, w.ResetField("sig"))
	assert.False(t, w.ResetField("missing"))

	var snap Snapshot
	_, err := j.Load(context.Background(), "tok", &snap)
	assert.ErrorIs(t, err, checkpoint.ErrNotFound, "no checkpoint written")
}

func TestProgressFormula(t *testing.T) {
	w := New("tok")
	w.Initialize(threeRequired())

	p := w.Progress()
	assert.Equal(t, 0.0, p.Percent)
	assert.Equal(t, 0, p.StepIndex)
	assert.Equal(t, 3, p.StepCount)

	w.BeginSigning()
	p = w.Progress()
	assert.InDelta(t, 33.33, p.Percent, 0.01)
	assert.Equal(t, 33, p.Rounded)
	assert.Equal(t, 3, p.TotalRequired)

	w.CompleteField("sig", "s")
	p = w.Progress()
	assert.InDelta(t, 44.44, p.Percent, 0.01)
	assert.Equal(t, 44, p.Rounded)
	assert.Equal(t, 1, p.Completed)

	w.CompleteField("note", "optional")
	assert.Equal(t, 44, w.Progress().Rounded, "optional fields do not move the bar")
	assert.Equal(t, 2, w.Progress().Completed)

	w.CompleteField("init", "i")
	w.CompleteField("date", "d")
	assert.InDelta(t, 66.67, w.Progress().Percent, 0.01)

	require.NoError(t, w.Confirm())
	p = w.Progress()
	assert.Equal(t, 100.0, p.Percent)
	assert.Equal(t, 100, p.Rounded)
	assert.Equal(t, 2, p.StepIndex)
}

func TestPercentWithoutRequiredFields(t *testing.T) {
	assert.InDelta(t, 66.67, Percent(StepSign, 0, 0), 0.01)
	assert.Equal(t, 0.0, Percent(StepReview, 3, 3))
	assert.Equal(t, 100.0, Percent(StepConfirm, 0, 5))
}

func TestCheckpointAfterEveryMutation(t *testing.T) {
	w, j := newJournaled(t, "tok")
	w.Initialize(threeRequired())
	w.BeginSigning()
	w.GoToField(1)
	w.CompleteField("init", "data:image/png;base64,BB")

	var snap Snapshot
	_, err := j.Load(context.Background(), "tok", &snap)
	require.NoError(t, err)
	assert.Equal(t, StepSign, snap.Step)
	assert.Equal(t, 1, snap.CurrentField)
	require.Len(t, snap.Fields, 4)
	assert.True(t, snap.Fields[1].Completed)
	assert.Equal(t, "data:image/png;base64,BB", *snap.Fields[1].Value)
	assert.NoError(t, w.LastSaveError())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	j := checkpoint.NewJournal(store, time.Hour)

	w := New("tok", WithJournal(j))
	w.Initialize(threeRequired())
	w.BeginSigning()
	w.CompleteField("sig", "S")
	w.CompleteField("init", "I")
	w.CompleteField("date", "D")
	require.NoError(t, w.Confirm())

	// Reopen with the same definitions.
	resumed := New("tok", WithJournal(j))
	resumed.Initialize(threeRequired())
	ok, err := resumed.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StepConfirm, resumed.Step())
	assert.True(t, resumed.AllComplete())
	f, _ := resumed.Field("init")
	assert.Equal(t, "I", *f.Value)

	// Reopen after the session dropped a field the checkpoint completed:
	// confirm is no longer justified.
	defs := threeRequired()
	defs = append(defs, field.Field{ID: "extra", Required: true})
	changed := New("tok", WithJournal(j))
	changed.Initialize(defs)
	ok, err = changed.Restore(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StepSign, changed.Step())

	// Another token has nothing stored.
	other := New("other", WithJournal(j))
	ok, err = other.Restore(ctx)
	assert.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, resumed.ClearProgress(ctx))
	ok, _ = New("tok", WithJournal(j)).Restore(ctx)
	assert.False(t, ok)
}

func TestRestoreExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	j := checkpoint.NewJournal(checkpoint.NewMemoryStore(), time.Hour, checkpoint.WithClock(clock))

	w := New("tok", WithJournal(j))
	w.Initialize(threeRequired())
	w.CompleteField("sig", "S")

	now = now.Add(2 * time.Hour)
	resumed := New("tok", WithJournal(j))
	resumed.Initialize(threeRequired())
	ok, err := resumed.Restore(context.Background())
	assert.False(t, ok)
	assert.True(t, errors.Is(err, checkpoint.ErrExpired))
	f, _ := resumed.Field("sig")
	assert.False(t, f.Completed)
}

func TestWithoutJournal(t *testing.T) {
	w := New("tok")
	w.Initialize(threeRequired())
	assert.NoError(t, w.Save(context.Background()))
	assert.NoError(t, w.ClearProgress(context.Background()))
	ok, err := w.Restore(context.Background())
	assert.False(t, ok)
	assert.NoError(t, err)
}

// Confirm succeeds exactly when every required field is completed.
func TestConfirmGuardProperty(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("confirm succeeds iff all required complete", prop.ForAll(
		func(required, completed []bool) bool {
			n := len(required)
			if len(completed) < n {
				n = len(completed)
			}
			defs := make([]field.Field, n)
			for i := 0; i < n; i++ {
				defs[i] = field.Field{ID: string(rune('a' + i)), Required: required[i]}
			}
			w := New("tok")
			w.Initialize(defs)
			w.BeginSigning()
			for i := 0; i < n; i++ {
				if completed[i] {
					w.CompleteField(defs[i].ID, "v")
				}
			}
			want := w.AllComplete()
			err := w.Confirm()
			if want != (err == nil) {
				return false
			}
			if err != nil {
				var inc *IncompleteError
				return errors.As(err, &inc) && w.Step() == StepSign
			}
			return w.Step() == StepConfirm
		},
		gen.SliceOfN(12, gen.Bool()),
		gen.SliceOfN(12, gen.Bool()),
	))

	properties.Property("progress stays within bounds", prop.ForAll(
		func(done, total int) bool {
			if done > total {
				done = total
			}
			p := Percent(StepSign, done, total)
			return p >= StepWeight && p <= 2*StepWeight+1e-9
		},
		gen.IntRange(0, 50),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
