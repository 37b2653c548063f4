// Package autosave coalesces editor snapshots into at most one document
// write per quiet period.
package autosave

import (
	"context"
	"sync"
	"time"

	"mdshare/internal/document/model"
	"mdshare/pkg/logger"
	"mdshare/pkg/metrics"
)

const (
	TriggerDebounce = "debounce"
	TriggerManual   = "manual"
)

// SaveFunc persists one edit of a document.
type SaveFunc func(ctx context.Context, docID string, edit model.Edit) error

type docState struct {
	// writeMu serializes writes of one document. Taken before d.mu.
	writeMu sync.Mutex
	gen     uint64
	timer   *time.Timer
	pending *model.Edit
}

// Debouncer keeps the latest unsaved edit per document and writes it once
// the document has been quiet for the configured period. Flush writes
// immediately and cancels whatever was pending.
type Debouncer struct {
	quiet   time.Duration
	save    SaveFunc
	timeout time.Duration

	mu   sync.Mutex
	docs map[string]*docState
}

func NewDebouncer(quiet time.Duration, save SaveFunc) *Debouncer {
	return &Debouncer{
		quiet:   quiet,
		save:    save,
		timeout: 10 * time.Second,
		docs:    make(map[string]*docState),
	}
}

func (d *Debouncer) state(docID string) *docState {
	st, ok := d.docs[docID]
	if !ok {
		st = &docState{}
		d.docs[docID] = st
	}
	return st
}

// Schedule replaces the pending edit of docID and restarts its quiet timer.
func (d *Debouncer) Schedule(docID string, edit model.Edit) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.state(docID)
	st.gen++
	st.pending = &edit
	if st.timer != nil {
		st.timer.Stop()
	}
	gen := st.gen
	st.timer = time.AfterFunc(d.quiet, func() { d.fire(docID, st, gen) })
}

func (d *Debouncer) fire(docID string, st *docState, gen uint64) {
	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	d.mu.Lock()
	// A Schedule or Flush after this timer was armed bumped gen.
	if st.gen != gen || st.pending == nil {
		d.mu.Unlock()
		return
	}
	edit := *st.pending
	st.pending = nil
	st.timer = nil
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	d.write(ctx, docID, edit, TriggerDebounce)
}

// Flush cancels the pending write of docID and saves synchronously. With a
// nil edit the pending edit is saved, if there is one.
func (d *Debouncer) Flush(ctx context.Context, docID string, edit *model.Edit) error {
	d.mu.Lock()
	st := d.state(docID)
	d.mu.Unlock()

	st.writeMu.Lock()
	defer st.writeMu.Unlock()

	d.mu.Lock()
	st.gen++
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	pending := st.pending
	st.pending = nil
	d.mu.Unlock()

	if edit == nil {
		if pending == nil {
			return nil
		}
		edit = pending
	}
	return d.write(ctx, docID, *edit, TriggerManual)
}

// Cancel drops the pending edit of docID without saving it.
func (d *Debouncer) Cancel(docID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.docs[docID]
	if !ok {
		return
	}
	st.gen++
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.pending = nil
}

// Pending reports whether docID has an unsaved edit.
func (d *Debouncer) Pending(docID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.docs[docID]
	return ok && st.pending != nil
}

// Forget releases the bookkeeping of docID once nothing is pending. Call it
// when the last editor of a document goes away.
func (d *Debouncer) Forget(docID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.docs[docID]; ok && st.pending == nil {
		delete(d.docs, docID)
	}
}

// FlushAll saves every pending edit. Used on shutdown.
func (d *Debouncer) FlushAll(ctx context.Context) error {
	d.mu.Lock()
	ids := make([]string, 0, len(d.docs))
	for id, st := range d.docs {
		if st.pending != nil {
			ids = append(ids, id)
		}
	}
	d.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := d.Flush(ctx, id, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *Debouncer) write(ctx context.Context, docID string, edit model.Edit, trigger string) error {
	err := d.save(ctx, docID, edit)
	if err != nil {
		metrics.AutosaveWrites.WithLabelValues(trigger, "error").Inc()
		logger.Sugar.Errorf("Failed to save doc %s (%s): %v", docID, trigger, err)
		return err
	}
	metrics.AutosaveWrites.WithLabelValues(trigger, "ok").Inc()
	logger.Sugar.Debugf("Saved document %s (%s)", docID, trigger)
	return nil
}
