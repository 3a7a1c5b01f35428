package wallet

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/juant72/sniperforge/internal/domain"
)

func TestReserveAndRelease(t *testing.T) {
	s := NewState("wallet1", map[domain.Asset]int64{"SOL": 5_000_000_000})

	res, err := s.Reserve("SOL", 2_000_000_000)
	require.NoError(t, err)

	snap := s.Snapshot()
	require.Equal(t, int64(3_000_000_000), snap.Available("SOL"))
	require.Equal(t, int64(5_000_000_000), snap.Balances["SOL"])

	res.Release()
	require.Equal(t, int64(5_000_000_000), s.Snapshot().Available("SOL"))
}

func TestReserveInsufficientBalance(t *testing.T) {
	s := NewState("wallet1", map[domain.Asset]int64{"SOL": 1_000_000_000})

	_, err := s.Reserve("SOL", 2_000_000_000)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)

	_, err = s.Reserve("USDC", 1)
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestConcurrentFullBalanceReservations(t *testing.T) {
	s := NewState("wallet1", map[domain.Asset]int64{"SOL": 1_000_000_000})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Reserve("SOL", 1_000_000_000)
		}()
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrInsufficientBalance):
			losses++
		}
	}
	require.Equal(t, 1, wins, "exactly one reservation wins")
	require.Equal(t, 1, losses, "the loser gets InsufficientBalance")
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := NewState("wallet1", map[domain.Asset]int64{"SOL": 1_000_000_000})

	res, err := s.Reserve("SOL", 600_000_000)
	require.NoError(t, err)
	res.Release()
	res.Release()
	res.Release()

	require.Equal(t, int64(1_000_000_000), s.Snapshot().Available("SOL"))
}

func TestSettleAppliesMovementsOnce(t *testing.T) {
	s := NewState("wallet1", map[domain.Asset]int64{"SOL": 2_000_000_000})

	res, err := s.Reserve("SOL", 1_000_000_000)
	require.NoError(t, err)
	res.Settle(map[domain.Asset]int64{"SOL": 1_050_000_000})
	res.Settle(map[domain.Asset]int64{"SOL": 1_050_000_000})
	res.Release()

	snap := s.Snapshot()
	require.Equal(t, int64(2_050_000_000), snap.Balances["SOL"])
	require.Equal(t, int64(2_050_000_000), snap.Available("SOL"))
}

func TestSettlePartialFailureLeavesIntermediateAsset(t *testing.T) {
	s := NewState("wallet1", map[domain.Asset]int64{"SOL": 1_000_000_000})

	res, err := s.Reserve("SOL", 1_000_000_000)
	require.NoError(t, err)
	// First hop confirmed, second failed: the wallet now holds USDC.
	res.Settle(map[domain.Asset]int64{"USDC": 150_000_000_000})

	snap := s.Snapshot()
	require.Equal(t, int64(0), snap.Available("SOL"))
	require.Equal(t, int64(150_000_000_000), snap.Available("USDC"))
}

func TestSetBalanceBumpsSequence(t *testing.T) {
	s := NewState("wallet1", nil)
	before := s.Snapshot().Sequence
	s.SetBalance("SOL", 1_000_000_000)
	require.Greater(t, s.Snapshot().Sequence, before)
}
