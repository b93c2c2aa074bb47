// Package tiered provides a Hot/Cold tiered attribute store that fronts a
// durable profile store (Cold) with a fast cache (Hot).
package tiered

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/mihaimyh/arcana/pkg/entitlement"
)

// HotStore is the cache tier. PatchAttributes merges attrs into an existing
// entry and reports false, writing nothing, when the user has no entry.
type HotStore interface {
	entitlement.AttributeStore
	PatchAttributes(ctx context.Context, userID string, attrs entitlement.Attributes) (bool, error)
	DeleteAttributes(ctx context.Context, userID string) error
}

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 cache storage (e.g., Redis, Memory)
	Hot HotStore

	// Cold is the L2 storage (e.g., Cognito, Postgres) and the source of truth
	Cold entitlement.AttributeStore

	// AsyncUsageSync makes usage increments on Hot return before the Cold copy
	// is written. If false, writes are synchronous (slower but safer).
	AsyncUsageSync bool

	// SyncBufferSize is the size of the buffered channel for async operations.
	// Default: 1000
	SyncBufferSize int

	// AsyncErrorHandler is called when a Cold sync fails.
	AsyncErrorHandler func(error)
}

type flagStore interface {
	HasFlag(ctx context.Context, key string) (bool, error)
	SetFlag(ctx context.Context, key string) error
}

// Storage implements a Hot/Cold tiered architecture with a strategy per operation:
// - Read-Through: attributes and flags (Hot, then Cold, repairing Hot)
// - Write-Through: attributes and flags (Cold, then Hot)
// - Increment: on Cold when it supports it, otherwise Hot-primary with a Cold sync
type Storage struct {
	hot  HotStore
	cold entitlement.AttributeStore
	conf Config

	syncQueue chan func() error
	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncUsageSync {
		s.startWorker()
	}

	return s, nil
}

// Close drains pending Cold writes and stops the async worker (if enabled).
func (s *Storage) Close() error {
	if s.conf.AsyncUsageSync {
		s.closeOnce.Do(func() {
			close(s.shutdown)
			s.wg.Wait()
		})
	}
	return nil
}

// startWorker runs the background synchronization loop. Jobs run one at a
// time so writes for a user reach Cold in order.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				s.run(job)
			case <-s.shutdown:
				for {
					select {
					case job := <-s.syncQueue:
						s.run(job)
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Storage) run(job func() error) {
	if err := job(); err != nil {
		s.reportError(fmt.Errorf("tiered sync failed: %w", err))
	}
}

func (s *Storage) reportError(err error) {
	if s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(err)
	}
}

// GetAttributes implements entitlement.AttributeStore with read-through.
// An empty bag from Hot counts as a miss. A repair racing a hot-primary
// increment on a cold miss can overwrite that increment.
func (s *Storage) GetAttributes(ctx context.Context, userID string) (entitlement.Attributes, error) {
	attrs, _, err := s.readThrough(ctx, userID)
	return attrs, err
}

// readThrough also reports whether Hot holds the full entry afterwards.
// Hot entries are only created from a full Cold copy; everything else patches.
func (s *Storage) readThrough(ctx context.Context, userID string) (entitlement.Attributes, bool, error) {
	attrs, err := s.hot.GetAttributes(ctx, userID)
	if err == nil && len(attrs) > 0 {
		return attrs, true, nil
	}

	attrs, err = s.cold.GetAttributes(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if len(attrs) == 0 {
		return attrs, false, nil
	}

	if err := s.hot.SetAttributes(ctx, userID, attrs); err != nil {
		s.evict(ctx, userID)
		return attrs, false, nil
	}
	return attrs, true, nil
}

// patchHot updates an existing Hot entry. A partial entry would shadow the
// Cold profile, so a failed patch evicts the entry instead.
func (s *Storage) patchHot(ctx context.Context, userID string, attrs entitlement.Attributes) {
	if _, err := s.hot.PatchAttributes(ctx, userID, attrs); err != nil {
		s.reportError(fmt.Errorf("tiered storage: hot write failed: %w", err))
		s.evict(ctx, userID)
	}
}

func (s *Storage) evict(ctx context.Context, userID string) {
	if err := s.hot.DeleteAttributes(ctx, userID); err != nil {
		s.reportError(fmt.Errorf("tiered storage: hot evict failed: %w", err))
	}
}

// SetAttributes implements entitlement.AttributeStore with write-through.
// Cold is written first; a failed Hot write is reported but not returned.
func (s *Storage) SetAttributes(ctx context.Context, userID string, attrs entitlement.Attributes) error {
	if err := s.cold.SetAttributes(ctx, userID, attrs); err != nil {
		return err
	}
	s.patchHot(ctx, userID, attrs)
	return nil
}

// IncrementAttribute implements entitlement.Incrementer. It returns
// entitlement.ErrIncrementUnsupported when neither tier can increment, or when
// Hot could not be filled for a hot-primary increment.
func (s *Storage) IncrementAttribute(ctx context.Context, userID, name string, delta int) (int, error) {
	if inc, ok := s.cold.(entitlement.Incrementer); ok {
		n, err := inc.IncrementAttribute(ctx, userID, name, delta)
		if err != nil {
			return 0, err
		}
		s.patchHot(ctx, userID, entitlement.Attributes{name: strconv.Itoa(n)})
		return n, nil
	}

	inc, ok := s.hot.(entitlement.Incrementer)
	if !ok {
		return 0, entitlement.ErrIncrementUnsupported
	}

	// Warm Hot so the increment starts from the durable value.
	_, cached, err := s.readThrough(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !cached {
		return 0, entitlement.ErrIncrementUnsupported
	}
	n, err := inc.IncrementAttribute(ctx, userID, name, delta)
	if err != nil {
		return 0, err
	}

	patch := entitlement.Attributes{name: strconv.Itoa(n)}
	if !s.conf.AsyncUsageSync {
		if err := s.cold.SetAttributes(ctx, userID, patch); err != nil {
			s.reportError(fmt.Errorf("tiered storage: sync cold write failed: %w", err))
		}
		return n, nil
	}

	// The job copies Hot's value at run time, so jobs landing out of order
	// still leave Cold at the latest count.
	select {
	case s.syncQueue <- func() error {
		// Background context so the write completes after the request ends.
		bg := context.Background()
		attrs, err := s.hot.GetAttributes(bg, userID)
		if err != nil {
			return err
		}
		latest, ok := attrs[name]
		if !ok {
			return nil
		}
		return s.cold.SetAttributes(bg, userID, entitlement.Attributes{name: latest})
	}:
	default:
		s.reportError(errors.New("tiered storage: sync queue full, dropping cold write"))
	}
	return n, nil
}

// HasFlag checks Hot, then Cold. Both tiers must store flags.
func (s *Storage) HasFlag(ctx context.Context, key string) (bool, error) {
	hot, cold, err := s.flagStores()
	if err != nil {
		return false, err
	}
	if ok, err := hot.HasFlag(ctx, key); err == nil && ok {
		return true, nil
	}
	ok, err := cold.HasFlag(ctx, key)
	if err != nil {
		return false, err
	}
	if ok {
		_ = hot.SetFlag(ctx, key) //nolint:errcheck // Cache fill - errors are non-critical
	}
	return ok, nil
}

// SetFlag writes the flag to Cold, then Hot.
func (s *Storage) SetFlag(ctx context.Context, key string) error {
	hot, cold, err := s.flagStores()
	if err != nil {
		return err
	}
	if err := cold.SetFlag(ctx, key); err != nil {
		return err
	}
	if err := hot.SetFlag(ctx, key); err != nil {
		s.reportError(fmt.Errorf("tiered storage: hot flag write failed: %w", err))
	}
	return nil
}

func (s *Storage) flagStores() (flagStore, flagStore, error) {
	hot, hotOK := s.hot.(flagStore)
	cold, coldOK := s.cold.(flagStore)
	if !hotOK || !coldOK {
		return nil, nil, errors.New("tiered storage: flags require both tiers to store flags")
	}
	return hot, cold, nil
}
