package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/invest-engine/invest"
)

func TestRowLocks_EntriesReleasedAfterUse(t *testing.T) {
	// GIVEN: Many distinct keys locked and unlocked
	// WHEN: Every holder has unlocked
	// THEN: No entries are left behind

	r := newRowLocks[invest.UserID]()
	ctx := context.Background()
	for _, k := range []invest.UserID{"a", "b", "c", "d"} {
		require.NoError(t, r.lock(ctx, k))
		assert.Equal(t, 1, r.size())
		r.unlock(k)
	}
	assert.Zero(t, r.size())
}

func TestRowLocks_AbandonedWaitReleasesEntry(t *testing.T) {
	// GIVEN: A held key and a waiter whose context expires
	// WHEN: The holder unlocks afterwards
	// THEN: The key can be taken again and the map is empty at the end

	r := newRowLocks[invest.InvestmentID]()
	ctx := context.Background()
	require.NoError(t, r.lock(ctx, "inv-1"))

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.lock(waitCtx, "inv-1"), context.DeadlineExceeded)
	assert.Equal(t, 1, r.size())

	r.unlock("inv-1")
	assert.Zero(t, r.size())

	require.NoError(t, r.lock(ctx, "inv-1"))
	r.unlock("inv-1")
	assert.Zero(t, r.size())
}

func TestMemory_LocksDoNotAccumulate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, u := range []invest.UserID{"u1", "u2", "u3"} {
		err := m.WithTx(ctx, func(tx invest.Tx) error {
			if err := tx.InsertBalance(ctx, u, invest.MustMoney("10")); err != nil {
				return err
			}
			_, err := tx.LockBalance(ctx, u)
			return err
		})
		require.NoError(t, err)
	}
	assert.Zero(t, m.users.size())
	assert.Zero(t, m.invs.size())
}
