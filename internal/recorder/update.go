package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/uirecorder/internal/controltree"
	"github.com/gyaneshwarpardhi/uirecorder/internal/event"
	"github.com/gyaneshwarpardhi/uirecorder/internal/metrics"
)

// errCycleTimeout marks an update cycle abandoned by the bounded join.
var errCycleTimeout = errors.New("update cycle timed out")

// update is the suspend-resubscribe-resume cycle. The hook is removed for
// the duration so no input is resolved against a tree being rebuilt; the
// rebuild and the subscription run concurrently and are both joined before
// the hook is installed again.
//
// A failed subscription is returned wrapped in ErrSubscription, a failed
// walk in controltree.ErrTreeUnavailable. On timeout the previous tree
// stays in place and errCycleTimeout is returned.
func (r *Recorder) update(ctx context.Context, rebuild bool, subscribeTo event.ElementRef) (err error) {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()
	if r.State() == StateStopped {
		return ErrStopped
	}
	start := time.Now()

	if bounds, berr := r.deps.Target.Bounds(ctx); berr == nil {
		r.deps.Overlay.Show(bounds)
	} else {
		r.deps.Overlay.Show(controltree.Rect{})
	}
	defer r.deps.Overlay.Close()

	wasHooked := r.uninstallHook()
	defer func() {
		if wasHooked {
			if herr := r.installHook(); herr != nil && err == nil {
				err = fmt.Errorf("reinstall hook: %w", herr)
			}
		}
		outcome := "ok"
		switch {
		case errors.Is(err, errCycleTimeout):
			outcome = "timeout"
		case errors.Is(err, ErrSubscription):
			outcome = "subscription_failed"
		case errors.Is(err, controltree.ErrTreeUnavailable):
			outcome = "tree_unavailable"
		case err != nil:
			outcome = "aborted"
		}
		metrics.UpdateCycles.WithLabelValues(outcome).Inc()
		r.logger.Debug("update cycle finished", "outcome", outcome, "elapsed", time.Since(start))
	}()

	// The session context ends the cycle when Stop is called mid-flight.
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	var deadline <-chan time.Time
	if d := r.conf.Recorder.ResubscribeTimeout(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}

	type built struct {
		snap *controltree.Snapshot
		err  error
	}
	var (
		subDone  chan error
		treeDone chan built
	)
	if subscribeTo != nil {
		subDone = make(chan error, 1)
		go func() {
			serr := r.deps.Platform.Subscribe(cycleCtx, subscribeTo, r.subOpts)
			// shutdown marks the session stopped before it unsubscribes, so a
			// subscription landing after that is removed here.
			if r.State() == StateStopped {
				if uerr := r.deps.Platform.UnsubscribeAll(context.WithoutCancel(ctx)); uerr != nil {
					r.logger.Warn("unsubscribe after stop failed", "err", uerr)
				}
			}
			subDone <- serr
		}()
	}
	if rebuild {
		treeDone = make(chan built, 1)
		go func() {
			snap, err := r.cache.Build(cycleCtx)
			treeDone <- built{snap, err}
		}()
	}

	var (
		subErr, treeErr error
		snap            *controltree.Snapshot
	)
	if subDone != nil {
		select {
		case subErr = <-subDone:
		case <-deadline:
			cancel()
			return r.cycleTimedOut()
		}
	}
	r.deps.Overlay.SetProgress(50)

	if treeDone != nil {
		select {
		case b := <-treeDone:
			snap, treeErr = b.snap, b.err
		case <-deadline:
			cancel()
			return r.cycleTimedOut()
		}
	}
	r.deps.Overlay.SetProgress(100)

	// The tree is published only once both halves are in, so an abandoned
	// cycle never replaces it.
	if r.State() == StateStopped {
		return ErrStopped
	}
	if snap != nil {
		r.cache.Publish(snap)
	}
	switch {
	case treeErr != nil:
		return treeErr
	case subErr != nil:
		return fmt.Errorf("%w: %v", ErrSubscription, subErr)
	}
	return nil
}

func (r *Recorder) cycleTimedOut() error {
	r.logger.Warn("update cycle did not finish in time, keeping previous tree",
		"timeout", r.conf.Recorder.ResubscribeTimeout())
	return errCycleTimeout
}

// refresh runs an update cycle while recording and applies the runtime
// failure policy: subscription failures and timeouts are logged, an
// unavailable tree ends the session.
func (r *Recorder) refresh(ctx context.Context, rebuild bool, subscribeTo event.ElementRef) {
	err := r.update(ctx, rebuild, subscribeTo)
	switch {
	case err == nil, errors.Is(err, ErrStopped), errors.Is(err, errCycleTimeout):
	case errors.Is(err, controltree.ErrTreeUnavailable):
		r.terminate(ctx, "tree_unavailable", err)
	case errors.Is(err, ErrSubscription):
		r.logger.Warn("resubscription failed, recording continues", "err", err)
	case errors.Is(err, context.Canceled):
		// Stop raced the cycle.
	default:
		r.logger.Warn("update cycle failed", "err", err)
	}
}

// refreshAsync runs refresh off the calling goroutine, for requests raised
// from inside the hook callback.
func (r *Recorder) refreshAsync(subscribeTo event.ElementRef) {
	r.background.Add(1)
	go func() {
		defer r.background.Done()
		r.refresh(r.ctx, true, subscribeTo)
	}()
}
