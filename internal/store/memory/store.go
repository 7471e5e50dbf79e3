// Package memory is a thread-safe in-memory implementation of the exchange
// repositories. A single mutex guards pairs, books, trades, balances and
// leases so that every multi-entity operation is one critical section.
package memory

import (
	"sync"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/efreitasn/pairexchange/internal/engine"
)

type balanceKey struct {
	user     string
	currency string
}

// Store holds all exchange state in memory.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	pairs     map[int64]*domain.AssetPair
	pairKeys  map[string]int64 // PairKey → pair id
	pairOrder []int64          // creation order

	orders      map[int64]*domain.Order
	ownerOrders map[string][]int64     // owner → order ids (append-only)
	books       map[int64]*engine.Book // pair → active orders

	trades map[int64][]*domain.Trade // pair → trades (append-only)

	balances map[balanceKey]*domain.Balance
	leases   map[int64]*domain.Lease

	nextPairID  int64
	nextOrderID int64
	nextTradeID int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		now:         time.Now,
		pairs:       make(map[int64]*domain.AssetPair),
		pairKeys:    make(map[string]int64),
		orders:      make(map[int64]*domain.Order),
		ownerOrders: make(map[string][]int64),
		books:       make(map[int64]*engine.Book),
		trades:      make(map[int64][]*domain.Trade),
		balances:    make(map[balanceKey]*domain.Balance),
		leases:      make(map[int64]*domain.Lease),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// book returns the pair's book, creating it on first use. Callers hold mu.
func (s *Store) book(pairID int64) *engine.Book {
	b, ok := s.books[pairID]
	if !ok {
		b = engine.NewBook()
		s.books[pairID] = b
	}
	return b
}

// balance returns the live balance row. Callers hold mu for writing.
func (s *Store) balance(user, currency string) *domain.Balance {
	k := balanceKey{user: user, currency: currency}
	b, ok := s.balances[k]
	if !ok {
		b = &domain.Balance{Currency: currency}
		s.balances[k] = b
	}
	return b
}
