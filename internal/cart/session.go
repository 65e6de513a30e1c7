// Package cart holds the shopper's cart: a client-side Session that mirrors
// its mutations to the server on a best-effort basis, and the server record
// those mirrors write to.
package cart

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// Mirror is the remote cart record a Session copies its mutations to.
type Mirror interface {
	Add(ctx context.Context, productID string, quantity int) error
	Update(ctx context.Context, productID string, quantity int) error
	Remove(ctx context.Context, productID string) error
	Clear(ctx context.Context) error
	Fetch(ctx context.Context) ([]domain.CartLine, error)
}

type mirrorTask struct {
	op  string
	run func(ctx context.Context, m Mirror) error
}

// Session is one shopper's cart. Local state is authoritative: every mutation
// applies locally first and is then queued for the mirror, in order, on a
// background goroutine. Mirror failures are logged and never undo local state.
type Session struct {
	mirror  Mirror
	logger  *slog.Logger
	timeout time.Duration

	mu    sync.Mutex
	lines []domain.CartLine

	queueMu  sync.Mutex
	queue    []mirrorTask
	draining bool
	idle     *sync.Cond
}

// NewSession returns an empty cart. mirror is nil for anonymous shoppers.
func NewSession(mirror Mirror, logger *slog.Logger) *Session {
	s := &Session{
		mirror:  mirror,
		logger:  logger,
		timeout: 10 * time.Second,
	}
	s.idle = sync.NewCond(&s.queueMu)
	return s
}

// Restore replaces local state, e.g. from client storage, without mirroring.
func (s *Session) Restore(lines []domain.CartLine) []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = s.lines[:0]
	for _, line := range lines {
		if line.ProductID == "" || line.Quantity <= 0 {
			continue
		}
		if i := s.indexOf(line.ProductID); i >= 0 {
			s.lines[i].Quantity += line.Quantity
			continue
		}
		s.lines = append(s.lines, line)
	}
	return slices.Clone(s.lines)
}

func (s *Session) AddLine(productID string) []domain.CartLine {
	s.mu.Lock()
	if i := s.indexOf(productID); i >= 0 {
		s.lines[i].Quantity++
	} else {
		s.lines = append(s.lines, domain.CartLine{ProductID: productID, Quantity: 1})
	}
	lines := slices.Clone(s.lines)
	s.mu.Unlock()

	s.enqueue(mirrorTask{op: "add", run: func(ctx context.Context, m Mirror) error {
		return m.Add(ctx, productID, 1)
	}})
	return lines
}

// SetQuantity sets an absolute quantity; zero or less removes the line.
func (s *Session) SetQuantity(productID string, quantity int) []domain.CartLine {
	if quantity <= 0 {
		return s.RemoveLine(productID)
	}

	s.mu.Lock()
	i := s.indexOf(productID)
	if i < 0 {
		lines := slices.Clone(s.lines)
		s.mu.Unlock()
		return lines
	}
	s.lines[i].Quantity = quantity
	lines := slices.Clone(s.lines)
	s.mu.Unlock()

	s.enqueue(mirrorTask{op: "update", run: func(ctx context.Context, m Mirror) error {
		return m.Update(ctx, productID, quantity)
	}})
	return lines
}

func (s *Session) RemoveLine(productID string) []domain.CartLine {
	s.mu.Lock()
	if i := s.indexOf(productID); i >= 0 {
		s.lines = slices.Delete(s.lines, i, i+1)
	}
	lines := slices.Clone(s.lines)
	s.mu.Unlock()

	s.enqueue(mirrorTask{op: "remove", run: func(ctx context.Context, m Mirror) error {
		return m.Remove(ctx, productID)
	}})
	return lines
}

func (s *Session) Clear() []domain.CartLine {
	s.mu.Lock()
	s.lines = nil
	s.mu.Unlock()

	s.enqueue(mirrorTask{op: "clear", run: func(ctx context.Context, m Mirror) error {
		return m.Clear(ctx)
	}})
	return []domain.CartLine{}
}

func (s *Session) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lines)
}

func (s *Session) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, line := range s.lines {
		count += line.Quantity
	}
	return count
}

// Sync waits for queued mirror writes and then replaces local state with the
// server record. Anonymous sessions and fetch failures keep local state.
func (s *Session) Sync(ctx context.Context) []domain.CartLine {
	if s.mirror == nil {
		return s.Lines()
	}
	s.Wait()

	remote, err := s.mirror.Fetch(ctx)
	if err != nil {
		s.logger.Warn("failed to sync cart with server", "error", err)
		return s.Lines()
	}
	return s.Restore(remote)
}

// Wait blocks until every queued mirror write has been attempted.
func (s *Session) Wait() {
	s.queueMu.Lock()
	for s.draining {
		s.idle.Wait()
	}
	s.queueMu.Unlock()
}

func (s *Session) indexOf(productID string) int {
	return slices.IndexFunc(s.lines, func(l domain.CartLine) bool { return l.ProductID == productID })
}

func (s *Session) enqueue(task mirrorTask) {
	if s.mirror == nil {
		return
	}

	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	s.queue = append(s.queue, task)
	if !s.draining {
		s.draining = true
		go s.drain()
	}
}

func (s *Session) drain() {
	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.idle.Broadcast()
			s.queueMu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := task.run(ctx, s.mirror); err != nil {
			s.logger.Warn("failed to mirror cart change", "op", task.op, "error", err)
		}
		cancel()
	}
}
