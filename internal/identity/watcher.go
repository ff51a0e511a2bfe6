package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Watcher polls the bridge's listing and turns snapshot differences into
// normalized events. The provider offers no change stream, so this is the
// push-style listener of the original deployment expressed as a poll.
type Watcher struct {
	bridge   Bridge
	handler  func(context.Context, Event)
	interval time.Duration

	primed   bool
	snapshot map[string]RemoteIdentity
}

func NewWatcher(bridge Bridge, interval time.Duration, handler func(context.Context, Event)) *Watcher {
	return &Watcher{
		bridge:   bridge,
		handler:  handler,
		interval: interval,
		snapshot: make(map[string]RemoteIdentity),
	}
}

func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				slog.Error("Identity watch poll failed", "error", err)
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context) error {
	current := make(map[string]RemoteIdentity)
	iter := w.bridge.List(ctx)
	for {
		remote, err := iter.Next()
		if errors.Is(err, ErrDone) {
			break
		}
		if err != nil {
			return err
		}
		current[remote.UID] = *remote
	}

	// the first listing only primes the snapshot; emitting created events
	// for the whole directory would just replay the initial import
	if w.primed {
		w.diff(ctx, current)
	}
	w.snapshot = current
	w.primed = true
	return nil
}

func (w *Watcher) diff(ctx context.Context, current map[string]RemoteIdentity) {
	for uid, identity := range current {
		previous, ok := w.snapshot[uid]
		if !ok {
			w.handler(ctx, Event{Kind: EventCreated, Identity: identity})
			continue
		}
		if previous.Disabled != identity.Disabled {
			kind := EventEnabled
			if identity.Disabled {
				kind = EventDisabled
			}
			w.handler(ctx, Event{Kind: kind, Identity: identity})
		}
	}
	for uid, identity := range w.snapshot {
		if _, ok := current[uid]; !ok {
			w.handler(ctx, Event{Kind: EventDeleted, Identity: identity})
		}
	}
}
