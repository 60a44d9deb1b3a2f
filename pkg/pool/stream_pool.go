// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package pool provides cached, lifecycle-managed file-replay stream
// loaders for running the same trace file across many simulations
// without re-parsing it on every open.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jontk/qss-sim/pkg/logging"
	"github.com/jontk/qss-sim/pkg/stream"
)

// StreamLoaderPool caches opened FileStream loaders keyed by path, so
// that repeated runs over the same trace file reuse one open loader
// instead of re-opening and re-parsing it each time.
type StreamLoaderPool struct {
	mu      sync.RWMutex
	loaders map[string]*pooledLoader
	config  *LoaderPoolConfig
	logger  logging.Logger
}

// pooledLoader wraps a FileStream with usage statistics.
type pooledLoader struct {
	loader   *stream.FileStream
	created  time.Time
	lastUsed time.Time
	useCount int64
	inUse    int32
}

// LoaderPoolConfig holds configuration for the stream loader pool.
type LoaderPoolConfig struct {
	// MaxIdleLoaders caps the number of cached loaders kept across all
	// paths; 0 means unlimited.
	MaxIdleLoaders int

	// TimeLimit, if set, is forwarded to every opened FileStream.
	TimeLimit *float64
}

// DefaultLoaderPoolConfig returns a pool configuration sized for a
// handful of concurrently replayed trace files.
func DefaultLoaderPoolConfig() *LoaderPoolConfig {
	return &LoaderPoolConfig{MaxIdleLoaders: 16}
}

// NewStreamLoaderPool creates a new stream loader pool.
func NewStreamLoaderPool(config *LoaderPoolConfig, logger logging.Logger) *StreamLoaderPool {
	if config == nil {
		config = DefaultLoaderPoolConfig()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &StreamLoaderPool{
		loaders: make(map[string]*pooledLoader),
		config:  config,
		logger:  logger,
	}
}

// GetStream returns the cached FileStream for path, opening and
// caching one if this is the first request for it. Source labels the
// jobs the stream reads, as stream.FileOptions.Source does.
func (p *StreamLoaderPool) GetStream(path, source string) (*stream.FileStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if pl, exists := p.loaders[path]; exists {
		pl.lastUsed = time.Now()
		pl.useCount++
		pl.inUse++
		return pl.loader, nil
	}

	fs, err := stream.NewFileStream(stream.FileOptions{
		Path:      path,
		Source:    source,
		TimeLimit: p.config.TimeLimit,
	})
	if err != nil {
		return nil, err
	}

	p.evictOldestLocked()

	p.loaders[path] = &pooledLoader{
		loader:   fs,
		created:  time.Now(),
		lastUsed: time.Now(),
		useCount: 1,
		inUse:    1,
	}
	p.logger.Info("opened new stream loader", "path", path)

	return fs, nil
}

// ReleaseStream marks path's loader as no longer in use by the
// caller that obtained it from GetStream, making it eligible for idle
// eviction again. A path with no cached loader is a no-op.
func (p *StreamLoaderPool) ReleaseStream(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pl, exists := p.loaders[path]
	if !exists || pl.inUse == 0 {
		return
	}
	pl.inUse--
}

// evictOldestLocked removes the least-recently-used idle loader if the
// pool is at MaxIdleLoaders capacity. Callers must hold p.mu.
func (p *StreamLoaderPool) evictOldestLocked() {
	if p.config.MaxIdleLoaders <= 0 || len(p.loaders) < p.config.MaxIdleLoaders {
		return
	}

	var oldestPath string
	var oldest time.Time
	for path, pl := range p.loaders {
		if pl.inUse != 0 {
			continue
		}
		if oldestPath == "" || pl.lastUsed.Before(oldest) {
			oldestPath, oldest = path, pl.lastUsed
		}
	}

	if oldestPath == "" {
		return
	}

	p.loaders[oldestPath].loader.Close()
	delete(p.loaders, oldestPath)
	p.logger.Info("evicted stream loader at capacity", "path", oldestPath)
}

// Stats returns statistics about the loader pool.
func (p *StreamLoaderPool) Stats() LoaderPoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := LoaderPoolStats{
		TotalLoaders: len(p.loaders),
		LoaderStats:  make(map[string]LoaderStats),
	}

	for path, pl := range p.loaders {
		stats.LoaderStats[path] = LoaderStats{
			Created:  pl.created,
			LastUsed: pl.lastUsed,
			UseCount: pl.useCount,
			InUse:    pl.inUse,
		}
	}

	return stats
}

// CleanupIdleLoaders closes and evicts loaders unused for longer than
// maxIdleTime, returning the number removed.
func (p *StreamLoaderPool) CleanupIdleLoaders(maxIdleTime time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxIdleTime)

	for path, pl := range p.loaders {
		if pl.lastUsed.Before(cutoff) && pl.inUse == 0 {
			pl.loader.Close()
			delete(p.loaders, path)
			removed++

			p.logger.Info("evicted idle stream loader",
				"path", path,
				"idle_duration", time.Since(pl.lastUsed),
			)
		}
	}

	return removed
}

// Close closes every cached loader in the pool.
func (p *StreamLoaderPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for path, pl := range p.loaders {
		pl.loader.Close()
		delete(p.loaders, path)
	}

	p.logger.Info("closed all stream loaders in pool")
	return nil
}

// LoaderPoolStats contains statistics about the loader pool.
type LoaderPoolStats struct {
	TotalLoaders int
	LoaderStats  map[string]LoaderStats
}

// LoaderStats contains statistics for a single cached loader.
type LoaderStats struct {
	Created  time.Time
	LastUsed time.Time
	UseCount int64
	InUse    int32
}

// LoaderManager manages pooled-loader lifecycle: a background routine
// evicts idle loaders, and health is checked only when a stream is
// requested through GetHealthyStream.
type LoaderManager struct {
	pool            *StreamLoaderPool
	healthCheckFunc HealthCheckFunc
	cleanupInterval time.Duration
	maxIdleTime     time.Duration
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	logger          logging.Logger
}

// HealthCheckFunc validates that the loader for path is still usable
// (e.g. its backing file still exists).
type HealthCheckFunc func(ctx context.Context, path string, loader *stream.FileStream) error

// NewLoaderManager creates a new loader manager.
func NewLoaderManager(pool *StreamLoaderPool, healthCheck HealthCheckFunc, logger logging.Logger) *LoaderManager {
	ctx, cancel := context.WithCancel(context.Background())

	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &LoaderManager{
		pool:            pool,
		healthCheckFunc: healthCheck,
		cleanupInterval: 5 * time.Minute,
		maxIdleTime:     15 * time.Minute,
		ctx:             ctx,
		cancel:          cancel,
		logger:          logger,
	}
}

// Start begins the background cleanup routine.
func (lm *LoaderManager) Start() {
	lm.wg.Add(1)
	go lm.cleanupRoutine()
}

// Stop stops the background cleanup routine and waits for it to exit.
func (lm *LoaderManager) Stop() {
	lm.cancel()
	lm.wg.Wait()
}

func (lm *LoaderManager) cleanupRoutine() {
	defer lm.wg.Done()

	ticker := time.NewTicker(lm.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := lm.pool.CleanupIdleLoaders(lm.maxIdleTime)
			if removed > 0 {
				lm.logger.Info("cleaned up idle stream loaders", "removed", removed)
			}
		case <-lm.ctx.Done():
			return
		}
	}
}

// GetHealthyStream returns a FileStream for path, validated by the
// configured health check when one is set.
func (lm *LoaderManager) GetHealthyStream(ctx context.Context, path, source string) (*stream.FileStream, error) {
	fs, err := lm.pool.GetStream(path, source)
	if err != nil {
		return nil, err
	}

	if lm.healthCheckFunc != nil {
		if err := lm.healthCheckFunc(ctx, path, fs); err != nil {
			return nil, fmt.Errorf("loader health check failed: %w", err)
		}
	}

	return fs, nil
}
