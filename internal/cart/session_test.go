package cart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type recordingMirror struct {
	mu     sync.Mutex
	ops    []string
	err    error
	remote []domain.CartLine
}

func (m *recordingMirror) record(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
	return m.err
}

func (m *recordingMirror) Add(_ context.Context, productID string, quantity int) error {
	return m.record(fmt.Sprintf("add %s %d", productID, quantity))
}

func (m *recordingMirror) Update(_ context.Context, productID string, quantity int) error {
	return m.record(fmt.Sprintf("update %s %d", productID, quantity))
}

func (m *recordingMirror) Remove(_ context.Context, productID string) error {
	return m.record("remove " + productID)
}

func (m *recordingMirror) Clear(context.Context) error {
	return m.record("clear")
}

func (m *recordingMirror) Fetch(context.Context) ([]domain.CartLine, error) {
	if err := m.record("fetch"); err != nil {
		return nil, err
	}
	return m.remote, nil
}

func (m *recordingMirror) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSession_Mutations(t *testing.T) {
	t.Run("add increments an existing line", func(t *testing.T) {
		s := NewSession(nil, discardLogger())

		s.AddLine("p1")
		s.AddLine("p2")
		lines := s.AddLine("p1")

		assert.Equal(t, []domain.CartLine{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}}, lines)
		assert.Equal(t, 3, s.ItemCount())
	})

	t.Run("set quantity replaces the amount", func(t *testing.T) {
		s := NewSession(nil, discardLogger())
		s.AddLine("p1")

		lines := s.SetQuantity("p1", 5)

		assert.Equal(t, []domain.CartLine{{ProductID: "p1", Quantity: 5}}, lines)
	})

	for _, qty := range []int{0, -1} {
		t.Run(fmt.Sprintf("set quantity %d removes the line", qty), func(t *testing.T) {
			s := NewSession(nil, discardLogger())
			s.AddLine("p1")
			s.AddLine("p2")

			lines := s.SetQuantity("p1", qty)

			assert.Equal(t, []domain.CartLine{{ProductID: "p2", Quantity: 1}}, lines)
		})
	}

	t.Run("set quantity on a missing line is a no-op", func(t *testing.T) {
		s := NewSession(nil, discardLogger())

		assert.Empty(t, s.SetQuantity("p1", 3))
	})

	t.Run("clear empties the cart", func(t *testing.T) {
		s := NewSession(nil, discardLogger())
		s.AddLine("p1")

		assert.Empty(t, s.Clear())
		assert.Zero(t, s.ItemCount())
	})

	t.Run("returned lines are a copy", func(t *testing.T) {
		s := NewSession(nil, discardLogger())
		lines := s.AddLine("p1")
		lines[0].Quantity = 99

		assert.Equal(t, 1, s.Lines()[0].Quantity)
	})

	t.Run("restore normalizes persisted lines", func(t *testing.T) {
		s := NewSession(nil, discardLogger())

		lines := s.Restore([]domain.CartLine{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "p2", Quantity: 0},
			{ProductID: "p1", Quantity: 2},
			{ProductID: "", Quantity: 4},
		})

		assert.Equal(t, []domain.CartLine{{ProductID: "p1", Quantity: 3}}, lines)
	})
}

func TestSession_Mirroring(t *testing.T) {
	t.Run("mutations are mirrored in order", func(t *testing.T) {
		mirror := &recordingMirror{}
		s := NewSession(mirror, discardLogger())

		s.AddLine("p1")
		s.AddLine("p1")
		s.SetQuantity("p1", 4)
		s.AddLine("p2")
		s.SetQuantity("p2", 0)
		s.Clear()
		s.Wait()

		assert.Equal(t, []string{
			"add p1 1",
			"add p1 1",
			"update p1 4",
			"add p2 1",
			"remove p2",
			"clear",
		}, mirror.recorded())
	})

	t.Run("mirror failures keep local state", func(t *testing.T) {
		mirror := &recordingMirror{err: errors.New("503 service unavailable")}
		s := NewSession(mirror, discardLogger())

		lines := s.AddLine("p1")
		s.Wait()

		assert.Equal(t, []domain.CartLine{{ProductID: "p1", Quantity: 1}}, lines)
		assert.Equal(t, lines, s.Lines())
		assert.Len(t, mirror.recorded(), 1)
	})

	t.Run("anonymous sessions never mirror", func(t *testing.T) {
		s := NewSession(nil, discardLogger())
		s.AddLine("p1")
		s.Wait()

		assert.Equal(t, 1, s.ItemCount())
	})

	t.Run("concurrent mutations all reach the mirror", func(t *testing.T) {
		mirror := &recordingMirror{}
		s := NewSession(mirror, discardLogger())

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.AddLine("p1")
			}()
		}
		wg.Wait()
		s.Wait()

		assert.Equal(t, 20, s.ItemCount())
		assert.Len(t, mirror.recorded(), 20)
	})
}

func TestSession_Sync(t *testing.T) {
	t.Run("server record replaces local lines", func(t *testing.T) {
		mirror := &recordingMirror{remote: []domain.CartLine{{ProductID: "p9", Quantity: 2}}}
		s := NewSession(mirror, discardLogger())
		s.Restore([]domain.CartLine{{ProductID: "p1", Quantity: 1}})

		lines := s.Sync(context.Background())

		assert.Equal(t, []domain.CartLine{{ProductID: "p9", Quantity: 2}}, lines)
		assert.Equal(t, 2, s.ItemCount())
	})

	t.Run("pending writes land before the fetch", func(t *testing.T) {
		mirror := &recordingMirror{}
		s := NewSession(mirror, discardLogger())
		s.AddLine("p1")

		s.Sync(context.Background())

		ops := mirror.recorded()
		require.Len(t, ops, 2)
		assert.Equal(t, "fetch", ops[1])
	})

	t.Run("fetch failure keeps local lines", func(t *testing.T) {
		mirror := &recordingMirror{err: errors.New("connection refused")}
		s := NewSession(mirror, discardLogger())
		s.Restore([]domain.CartLine{{ProductID: "p1", Quantity: 1}})

		lines := s.Sync(context.Background())

		assert.Equal(t, []domain.CartLine{{ProductID: "p1", Quantity: 1}}, lines)
	})

	t.Run("anonymous sync is local only", func(t *testing.T) {
		s := NewSession(nil, discardLogger())
		s.AddLine("p1")

		assert.Equal(t, []domain.CartLine{{ProductID: "p1", Quantity: 1}}, s.Sync(context.Background()))
	})
}

func TestSession_ConcurrentMutationsAndSync(t *testing.T) {
	mirror := &recordingMirror{}
	s := NewSession(mirror, discardLogger())

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range rounds {
			s.AddLine("p1")
		}
	}()
	go func() {
		defer wg.Done()
		for range rounds {
			s.Sync(context.Background())
		}
	}()
	wg.Wait()
	s.Wait()

	adds := 0
	for _, op := range mirror.recorded() {
		if op == "add p1 1" {
			adds++
		}
	}
	assert.Equal(t, rounds, adds)
}
