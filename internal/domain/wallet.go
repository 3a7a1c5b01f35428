package domain

import "time"

// WalletSnapshot is a read-only view of the engine's spendable balances and
// in-flight reservations, taken under the wallet's single-writer lock. The
// risk validator only ever sees snapshots, never the live state.
type WalletSnapshot struct {
	Address  string
	Balances map[Asset]int64
	Reserved map[Asset]int64
	Sequence uint64
	TakenAt  time.Time
}

// Available returns the spendable (non-reserved) balance for the asset.
func (s WalletSnapshot) Available(a Asset) int64 {
	return s.Balances[a] - s.Reserved[a]
}
