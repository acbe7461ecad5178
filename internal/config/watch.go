package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/talkdub/talkdub/pkg/logger"
)

// CredentialWatcher watches the LLM and speech-model credential files and
// hot-swaps the in-memory value on write, so rotating a key does not require
// restarting the worker. Adapted from the file-watching idiom this project
// has used for monitoring a directory tree, narrowed to single files.
type CredentialWatcher struct {
	watcher *fsnotify.Watcher
	mu      sync.RWMutex
	values  map[string]string
	paths   map[string]string // path -> logical key
}

// NewCredentialWatcher creates a watcher seeded with the config's currently
// loaded credential values. Files that don't exist are skipped silently;
// env-var-provided credentials remain authoritative until a file appears.
func NewCredentialWatcher(cfg *Config) (*CredentialWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	cw := &CredentialWatcher{
		watcher: w,
		values:  make(map[string]string),
		paths:   make(map[string]string),
	}

	cw.track("llm_api_key", cfg.LLMCredentialFile, cfg.LLMAPIKey)
	cw.track("speech_model_api_key", cfg.SpeechCredentialFile, cfg.SpeechModelAPIKey)

	return cw, nil
}

func (cw *CredentialWatcher) track(key, path, fallback string) {
	cw.mu.Lock()
	cw.values[key] = fallback
	cw.mu.Unlock()

	if path == "" {
		return
	}
	if data, err := os.ReadFile(path); err == nil {
		cw.mu.Lock()
		cw.values[key] = strings.TrimSpace(string(data))
		cw.mu.Unlock()
	}
	dir := filepath.Dir(path)
	if err := cw.watcher.Add(dir); err != nil {
		logger.Warn("credential watcher could not watch directory", "dir", dir, "error", err)
		return
	}
	cw.paths[path] = key
}

// Start begins processing filesystem events in the background. Call Stop to
// release the underlying inotify/kqueue handle.
func (cw *CredentialWatcher) Start() {
	go cw.loop()
}

func (cw *CredentialWatcher) loop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handle(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("credential watcher error", "error", err)
		}
	}
}

func (cw *CredentialWatcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	cw.mu.RLock()
	key, tracked := cw.paths[event.Name]
	cw.mu.RUnlock()
	if !tracked {
		return
	}
	data, err := os.ReadFile(event.Name)
	if err != nil {
		logger.Warn("credential watcher failed to re-read file", "file", event.Name, "error", err)
		return
	}
	cw.mu.Lock()
	cw.values[key] = strings.TrimSpace(string(data))
	cw.mu.Unlock()
	logger.Info("credential reloaded", "key", key)
}

// Get returns the current value of a tracked credential.
func (cw *CredentialWatcher) Get(key string) string {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.values[key]
}

// Stop closes the underlying watcher.
func (cw *CredentialWatcher) Stop() error {
	return cw.watcher.Close()
}
