package filebatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// SendFunc hands a packed batch payload to the link layer.
type SendFunc func(ctx context.Context, payload []byte) error

// Watcher drives the outbox directory: every file created or written
// under it is packed and sent over the link, one at a time. Dotfiles
// are ignored so editors and scp temp files do not trigger transfers.
type Watcher struct {
	dir             string
	send            SendFunc
	includeExisting bool
	log             zerolog.Logger

	queue chan string
}

func NewWatcher(dir string, send SendFunc, includeExisting bool, logger zerolog.Logger) *Watcher {
	return &Watcher{
		dir:             dir,
		send:            send,
		includeExisting: includeExisting,
		log:             logger.With().Str("component", "filebatch").Str("outbox", dir).Logger(),
		queue:           make(chan string, 100),
	}
}

// Run watches the outbox until ctx is cancelled. Files queued while a
// transfer is in flight wait their turn; send errors are logged and the
// file stays on disk for a retry by touch.
func (w *Watcher) Run(ctx context.Context) error {
	if w.includeExisting {
		if err := w.scanExisting(); err != nil {
			return err
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filebatch: watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("filebatch: watch %s: %w", w.dir, err)
	}
	w.log.Info().Msg("outbox_watch_start")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Create == fsnotify.Create || event.Op&fsnotify.Write == fsnotify.Write {
					w.enqueue(event.Name)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.log.Warn().Err(err).Msg("outbox_watch_error")
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path := <-w.queue:
			w.process(ctx, path)
		}
	}
}

func (w *Watcher) scanExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("filebatch: scan %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		w.enqueue(filepath.Join(w.dir, e.Name()))
	}
	return nil
}

func (w *Watcher) enqueue(path string) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	select {
	case w.queue <- path:
		w.log.Debug().Str("file", base).Msg("outbox_enqueued")
	default:
		w.log.Warn().Str("file", base).Msg("outbox_queue_full")
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	payload, err := PackFile(path)
	if err != nil {
		w.log.Error().Err(err).Str("file", path).Msg("batch_pack_failed")
		return
	}
	if err := w.send(ctx, []byte(payload)); err != nil {
		w.log.Error().Err(err).Str("file", path).Msg("batch_send_failed")
		return
	}
	w.log.Info().Str("file", filepath.Base(path)).Int("bytes", len(payload)).Msg("batch_sent")
}
