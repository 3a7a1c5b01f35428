// Package wallet owns the process-local view of wallet balances and
// reservations. All mutation goes through one State value guarded by a
// mutex, which enforces the single-writer rule for execution funds.
package wallet

import (
	"fmt"
	"sync"
	"time"

	"github.com/juant72/sniperforge/internal/domain"
)

// Reservation is a claim on a slice of the wallet's balance. Release is
// idempotent; calling it more than once returns funds exactly once.
type Reservation struct {
	state  *State
	asset  domain.Asset
	amount int64

	mu       sync.Mutex
	released bool
}

// Asset returns the reserved asset.
func (r *Reservation) Asset() domain.Asset { return r.asset }

// Amount returns the reserved quantity in base units.
func (r *Reservation) Amount() int64 { return r.amount }

// Release returns the reserved funds to the available pool. Safe to call
// from deferred paths that may overlap an explicit release.
func (r *Reservation) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.state.release(r.asset, r.amount)
}

// Settle consumes the reservation and applies the attempt's real balance
// movements: the reserved input leaves the wallet and the confirmed outputs
// are credited. Like Release it fires at most once.
func (r *Reservation) Settle(credits map[domain.Asset]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.state.settle(r.asset, r.amount, credits)
}

// State tracks balances and outstanding reservations for one wallet.
type State struct {
	mu       sync.Mutex
	address  string
	balances map[domain.Asset]int64
	reserved map[domain.Asset]int64
	sequence uint64
}

// NewState creates a wallet view seeded with the given balances.
func NewState(address string, balances map[domain.Asset]int64) *State {
	b := make(map[domain.Asset]int64, len(balances))
	for a, v := range balances {
		b[a] = v
	}
	return &State{
		address:  address,
		balances: b,
		reserved: make(map[domain.Asset]int64),
	}
}

// Address returns the wallet's on-chain address.
func (s *State) Address() string {
	return s.address
}

// SetBalance overwrites the tracked balance for one asset, used when a
// fresh on-chain balance is observed. Reservations are left untouched.
func (s *State) SetBalance(asset domain.Asset, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[asset] = amount
	s.sequence++
}

// Reserve atomically claims amount of asset for an execution attempt. It
// fails with ErrInsufficientBalance when the non-reserved balance cannot
// cover the claim, which is how a concurrent attempt loses the race.
func (s *State) Reserve(asset domain.Asset, amount int64) (*Reservation, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("wallet: reserve amount must be positive, got %d", amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	available := s.balances[asset] - s.reserved[asset]
	if available < amount {
		return nil, fmt.Errorf("wallet: reserve %d %s, available %d: %w",
			amount, asset, available, domain.ErrInsufficientBalance)
	}
	s.reserved[asset] += amount
	s.sequence++
	return &Reservation{state: s, asset: asset, amount: amount}, nil
}

// Snapshot returns a copy of the wallet state for risk validation.
func (s *State) Snapshot() domain.WalletSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := make(map[domain.Asset]int64, len(s.balances))
	for a, v := range s.balances {
		balances[a] = v
	}
	reserved := make(map[domain.Asset]int64, len(s.reserved))
	for a, v := range s.reserved {
		reserved[a] = v
	}
	return domain.WalletSnapshot{
		Address:  s.address,
		Balances: balances,
		Reserved: reserved,
		Sequence: s.sequence,
		TakenAt:  time.Now().UTC(),
	}
}

func (s *State) release(asset domain.Asset, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved[asset] -= amount
	if s.reserved[asset] < 0 {
		s.reserved[asset] = 0
	}
	s.sequence++
}

func (s *State) settle(asset domain.Asset, amount int64, credits map[domain.Asset]int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved[asset] -= amount
	if s.reserved[asset] < 0 {
		s.reserved[asset] = 0
	}
	s.balances[asset] -= amount
	if s.balances[asset] < 0 {
		s.balances[asset] = 0
	}
	for a, v := range credits {
		s.balances[a] += v
	}
	s.sequence++
}
