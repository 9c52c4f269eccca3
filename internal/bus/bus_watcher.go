package bus

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// nudgeWatcher wakes the poller when a record is published. It only
// shortens the wait; the poll interval still bounds latency on its own.
type nudgeWatcher struct {
	watcher *fsnotify.Watcher
	nudge   func()
	logger  zerolog.Logger
	stopCh  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func startNudgeWatcher(dir string, nudge func(), logger zerolog.Logger) (*nudgeWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	w := &nudgeWatcher{
		watcher: watcher,
		nudge:   nudge,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

func (w *nudgeWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.nudge()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug().Err(err).Msg("outbox watcher error")
		}
	}
}

func (w *nudgeWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
