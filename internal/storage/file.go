// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/nexusblog/nexus-client/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore is a durable Store kept as one JSON object on disk. Several client
// processes may share the same file; each write replaces the file atomically
// and every FileStore watching the file reloads its cache when another
// process writes it.
type FileStore struct {
	path string

	mu     sync.RWMutex
	data   map[string]string
	closed bool

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	watch    bool
	logger   *log.Logger
	onReload func()
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithoutWatch disables fsnotify-based reloads.
func WithoutWatch() FileStoreOption {
	return func(f *FileStore) {
		f.watch = false
	}
}

// WithFileLogger sets the logger used for reload failures.
func WithFileLogger(logger *log.Logger) FileStoreOption {
	return func(f *FileStore) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithReloadHook registers a function called after each external reload.
func WithReloadHook(fn func()) FileStoreOption {
	return func(f *FileStore) {
		f.onReload = fn
	}
}

// OpenFileStore opens (or lazily creates) the store at path.
func OpenFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	f := &FileStore{
		path:   path,
		data:   make(map[string]string),
		done:   make(chan struct{}),
		watch:  true,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := f.readFile()
	if err != nil {
		return nil, err
	}
	f.data = data

	if f.watch {
		if err := f.startWatcher(); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	return v, ok
}

func (f *FileStore) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	prev, had := f.data[key]
	f.data[key] = value
	if err := f.flushLocked(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	prev, had := f.data[key]
	if !had {
		return nil
	}
	delete(f.data, key)
	if err := f.flushLocked(); err != nil {
		f.data[key] = prev
		return err
	}
	return nil
}

func (f *FileStore) Keys() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reload re-reads the file, replacing the in-memory view. The lock is held
// across the read so a concurrent Set cannot be overwritten by older content.
func (f *FileStore) Reload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.readFile()
	if err != nil {
		return err
	}
	f.data = data
	return nil
}

// Close stops the watcher. Reads keep working on the last loaded view.
func (f *FileStore) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()

	close(f.done)
	var err error
	if f.watcher != nil {
		err = f.watcher.Close()
	}
	f.wg.Wait()
	return err
}

// flushLocked writes the whole map. Caller must hold f.mu.
func (f *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	if err := util.AtomicWriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	return nil
}

func (f *FileStore) readFile() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	data := make(map[string]string)
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode store %s: %w", f.path, err)
	}
	return data, nil
}

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

func (f *FileStore) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// Atomic renames replace the inode, so the directory is watched rather than the file.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch store directory: %w", err)
	}
	f.watcher = watcher

	f.wg.Add(1)
	go f.processEvents()
	return nil
}

func (f *FileStore) processEvents() {
	defer f.wg.Done()
	target := filepath.Clean(f.path)

	for {
		select {
		case <-f.done:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := f.Reload(); err != nil {
				f.logger.Printf("STORE_RELOAD_FAILED | path=%s error=%v", f.path, err)
				continue
			}
			if f.onReload != nil {
				f.onReload()
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Printf("STORE_WATCH_ERROR | path=%s error=%v", f.path, err)
		}
	}
}
