// Package store holds dashboard state as observable cells. Changing the
// scope is the only thing that re-fetches scope-dependent data.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/modoterra/jukedash/pkg/core"
)

// Loader fetches dashboard data. *api.Client satisfies it.
type Loader interface {
	Status(ctx context.Context) (core.Status, error)
	Guilds(ctx context.Context) ([]core.Guild, error)
	Notifications(ctx context.Context) ([]core.Notification, error)
	Analytics(ctx context.Context, scope core.Scope) (core.Analytics, error)
	Songs(ctx context.Context, scope core.Scope) ([]core.Song, error)
	Library(ctx context.Context, scope core.Scope) ([]core.Row, error)
}

// Store is the dashboard's shared state.
type Store struct {
	Scope         *Cell[core.Scope]
	Status        *Cell[core.Status]
	Guilds        *Cell[[]core.Guild]
	Analytics     *Cell[core.Analytics]
	Songs         *Cell[[]core.Song]
	Library       *Cell[[]core.Row]
	Notifications *Cell[[]core.Notification]
	LastError     *Cell[error]

	loader  Loader
	logger  *slog.Logger
	changes chan struct{}
	wg      sync.WaitGroup
}

// New creates a store scoped to the global view.
func New(loader Loader, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		Scope:         NewCell(core.GlobalScope, eq[core.Scope]),
		Status:        NewCell(core.Status{}, eq[core.Status]),
		Guilds:        NewCell[[]core.Guild](nil, nil),
		Analytics:     NewCell(core.Analytics{}, nil),
		Songs:         NewCell[[]core.Song](nil, nil),
		Library:       NewCell[[]core.Row](nil, nil),
		Notifications: NewCell[[]core.Notification](nil, nil),
		LastError:     NewCell[error](nil, nil),
		loader:        loader,
		logger:        logger,
		changes:       make(chan struct{}, 1),
	}
}

// Start wires the scope cascade and change notifications. Scope-triggered
// fetches run under ctx. Stop unsubscribes and waits for in-flight fetches.
func (s *Store) Start(ctx context.Context) (stop func()) {
	cancels := []func(){
		s.Scope.Subscribe(func(scope core.Scope) {
			s.notify()
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.refreshScoped(ctx, scope)
			}()
		}),
		s.Status.Subscribe(func(core.Status) { s.notify() }),
		s.Guilds.Subscribe(func([]core.Guild) { s.notify() }),
		s.Analytics.Subscribe(func(core.Analytics) { s.notify() }),
		s.Songs.Subscribe(func([]core.Song) { s.notify() }),
		s.Library.Subscribe(func([]core.Row) { s.notify() }),
		s.Notifications.Subscribe(func([]core.Notification) { s.notify() }),
		s.LastError.Subscribe(func(error) { s.notify() }),
	}
	return func() {
		for _, c := range cancels {
			c()
		}
		s.wg.Wait()
	}
}

// Changes fires at least once after any cell changes. Bursts coalesce.
func (s *Store) Changes() <-chan struct{} { return s.changes }

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// SetScope switches scope; scoped data reloads if it actually changed.
func (s *Store) SetScope(scope core.Scope) {
	if scope == "" {
		scope = core.GlobalScope
	}
	s.Scope.Set(scope)
}

// Refresh reloads everything for the current scope.
func (s *Store) Refresh(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(what string, err error) {
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
		mu.Unlock()
	}

	wg.Add(4)
	go func() {
		defer wg.Done()
		if st, err := s.loader.Status(ctx); err != nil {
			fail("status", err)
		} else {
			s.Status.Set(st)
		}
	}()
	go func() {
		defer wg.Done()
		if gs, err := s.loader.Guilds(ctx); err != nil {
			fail("guilds", err)
		} else {
			s.Guilds.Set(gs)
		}
	}()
	go func() {
		defer wg.Done()
		if ns, err := s.loader.Notifications(ctx); err != nil {
			fail("notifications", err)
		} else {
			s.Notifications.Set(ns)
		}
	}()
	go func() {
		defer wg.Done()
		if err := s.refreshScoped(ctx, s.Scope.Get()); err != nil {
			fail("scope", err)
		}
	}()
	wg.Wait()

	err := errors.Join(errs...)
	s.LastError.Set(err)
	return err
}

// refreshScoped loads analytics, songs and library for scope. Results that
// arrive after the scope moved on are dropped.
func (s *Store) refreshScoped(ctx context.Context, scope core.Scope) error {
	current := func() bool { return s.Scope.Get() == scope }

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	fail := func(what string, err error) {
		mu.Lock()
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		a, err := s.loader.Analytics(ctx, scope)
		if err != nil {
			fail("analytics", err)
			return
		}
		if current() {
			s.Analytics.Set(a)
		}
	}()
	go func() {
		defer wg.Done()
		songs, err := s.loader.Songs(ctx, scope)
		if err != nil {
			fail("songs", err)
			return
		}
		if current() {
			s.Songs.Set(songs)
		}
	}()
	go func() {
		defer wg.Done()
		lib, err := s.loader.Library(ctx, scope)
		if err != nil {
			fail("library", err)
			return
		}
		if current() {
			s.Library.Set(lib)
		}
	}()
	wg.Wait()

	err := errors.Join(errs...)
	if err != nil && ctx.Err() == nil {
		s.logger.Warn("scoped refresh failed", "scope", scope, "err", err)
		if current() {
			s.LastError.Set(err)
		}
	}
	if !current() {
		s.logger.Debug("discarded stale scoped response", "scope", scope)
	}
	return err
}

// Guild returns the cached guild for id.
func (s *Store) Guild(id string) (core.Guild, bool) {
	for _, g := range s.Guilds.Get() {
		if g.ID == id {
			return g, true
		}
	}
	return core.Guild{}, false
}
