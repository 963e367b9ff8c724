package wizard

import (
	"context"
	"errors"
	"fmt"

	"leasesign/internal/checkpoint"
)

const snapshotVersion = 1

// Snapshot is the checkpointed form of a wizard.
type Snapshot struct {
	Version      int          `json:"version"`
	Step         Step         `json:"step"`
	CurrentField int          `json:"currentField"`
	Fields       []FieldState `json:"fields"`
}

// FieldState is the resumable part of one field.
type FieldState struct {
	ID        string  `json:"id"`
	Value     *string `json:"value,omitempty"`
	Completed bool    `json:"completed"`
}

// Snapshot captures the current state.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Wizard) snapshotLocked() Snapshot {
	fields := w.fields.Fields()
	snap := Snapshot{
		Version:      snapshotVersion,
		Step:         w.step,
		CurrentField: w.current,
		Fields:       make([]FieldState, len(fields)),
	}
	for i, f := range fields {
		snap.Fields[i] = FieldState{ID: f.ID, Value: f.Value, Completed: f.Completed}
	}
	return snap
}

// Save writes a checkpoint. It is a no-op without a journal.
func (w *Wizard) Save(ctx context.Context) error {
	if w.journal == nil {
		return nil
	}
	snap := w.Snapshot()
	if err := w.journal.Save(ctx, w.token, snap); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

func (w *Wizard) autosave() {
	if w.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.saveTimeout)
	defer cancel()

	err := w.Save(ctx)
	w.mu.Lock()
	w.lastSaveErr = err
	handler := w.onSaveError
	w.mu.Unlock()
	if err != nil && handler != nil {
		handler(err)
	}
}

// LastSaveError returns the outcome of the most recent automatic save.
func (w *Wizard) LastSaveError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSaveErr
}

// Restore applies a stored checkpoint on top of the initialised fields.
// Stored values are matched by field id; ids the session no longer defines
// are dropped. A stored confirm step whose fields no longer satisfy the
// guard resumes in sign. It returns false with a nil error when there is
// nothing to restore; expired and corrupt checkpoints return false along
// with checkpoint.ErrExpired or checkpoint.ErrCorrupt.
func (w *Wizard) Restore(ctx context.Context) (bool, error) {
	if w.journal == nil {
		return false, nil
	}
	var snap Snapshot
	if _, err := w.journal.Load(ctx, w.token, &snap); err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if snap.Version != snapshotVersion || !snap.Step.Valid() {
		_ = w.journal.Clear(ctx, w.token)
		return false, fmt.Errorf("%w: unsupported snapshot", checkpoint.ErrCorrupt)
	}

	w.mu.Lock()
	for _, fs := range snap.Fields {
		if fs.Completed && fs.Value != nil {
			w.fields.Complete(fs.ID, *fs.Value)
		}
	}
	w.step = snap.Step
	if w.step == StepConfirm && !w.fields.AllComplete() {
		w.step = StepSign
	}
	w.current = snap.CurrentField
	w.clampLocked()
	w.mu.Unlock()
	return true, nil
}

// ClearProgress deletes the checkpoint. Called after a successful submit.
func (w *Wizard) ClearProgress(ctx context.Context) error {
	if w.journal == nil {
		return nil
	}
	return w.journal.Clear(ctx, w.token)
}
