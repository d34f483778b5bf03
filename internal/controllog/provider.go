package controllog

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Provider watches the parsed control-log file and keeps the entry list
// current. The external spreadsheet parser rewrites the whole file on
// every change.
type Provider struct {
	path  string
	cache *Cache
	log   zerolog.Logger

	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	entries []Entry

	// Debounce: the parser writes in bursts.
	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

func NewProvider(path string, log zerolog.Logger) *Provider {
	p := &Provider{
		path: path,
		log:  log.With().Str("component", "controllog").Logger(),
	}
	p.cache = NewCache(func(int) ([]Entry, error) {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.entries, nil
	})
	return p
}

// Start loads the file once and begins watching its directory for
// rewrites. A missing file is not an error; entries stay empty until
// the parser produces one.
func (p *Provider) Start() error {
	p.reload()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	p.watcher = w

	if err := w.Add(filepath.Dir(p.path)); err != nil {
		w.Close()
		return err
	}

	go p.watchLoop()
	p.log.Info().Str("path", p.path).Msg("control log provider started")
	return nil
}

func (p *Provider) Stop() {
	if p.watcher != nil {
		p.watcher.Close()
	}
}

func (p *Provider) watchLoop() {
	for {
		select {
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != p.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			p.scheduleReload()
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.log.Warn().Err(err).Msg("control log watch error")
		}
	}
}

func (p *Provider) scheduleReload() {
	p.debounceMu.Lock()
	defer p.debounceMu.Unlock()
	if p.debounceTimer != nil {
		p.debounceTimer.Stop()
	}
	p.debounceTimer = time.AfterFunc(250*time.Millisecond, p.reload)
}

func (p *Provider) reload() {
	entries, err := LoadFile(p.path)
	if err != nil {
		p.log.Warn().Err(err).Msg("control log reload failed")
		return
	}

	p.mu.Lock()
	p.entries = entries
	p.mu.Unlock()

	// Events present in the file decide which cache keys go stale.
	seen := make(map[int]bool)
	for _, e := range entries {
		if !seen[e.EventID] {
			seen[e.EventID] = true
			p.cache.Invalidate(e.EventID)
		}
	}

	p.log.Debug().Int("entries", len(entries)).Msg("control log reloaded")
}

// Entries returns the current entry list for an event through the
// cache.
func (p *Provider) Entries(eventID int) []Entry {
	entries, err := p.cache.Entries(eventID)
	if err != nil {
		p.log.Warn().Err(err).Int("event_id", eventID).Msg("control log load failed")
		return nil
	}
	var out []Entry
	for _, e := range entries {
		if e.EventID == eventID || e.EventID == 0 {
			out = append(out, e)
		}
	}
	return out
}
