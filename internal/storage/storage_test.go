package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodesale/internal/failure"
)

func openTestStorage(t *testing.T) *SqliteStorage {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	store, err := NewSqliteStorage(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestVersionedSaveDetectsStaleCopy(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		return repo.SavePhase(&SalePhase{Name: "genesis", DiscountScale: "bps", TotalTiers: 2})
	}))

	var stale *SalePhase
	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		var err error
		stale, err = repo.Phase("genesis")
		return err
	}))
	assert.Equal(t, int64(1), stale.Version)

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		fresh, err := repo.Phase("genesis")
		if err != nil {
			return err
		}
		fresh.TotalInitializedTiers = 1
		return repo.SavePhase(fresh)
	}))

	err := store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		stale.TotalInitializedTiers = 2
		return repo.SavePhase(stale)
	})
	assert.ErrorIs(t, err, failure.ErrConcurrentUpdate)
	assert.Equal(t, int64(1), stale.Version)

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		phase, err := repo.Phase("genesis")
		require.NoError(t, err)
		assert.Equal(t, uint32(1), phase.TotalInitializedTiers)
		assert.Equal(t, int64(2), phase.Version)
		return nil
	}))
}

func TestTransactionRollsBackEveryWrite(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(ctx context.Context, repo *Repository) error {
		account, err := repo.UserAccount("genesis", "alice")
		require.NoError(t, err)
		account.TotalOrders = 1
		require.NoError(t, repo.SaveUserAccount(account))

		// a collaborator reaching the transaction through the context joins it
		return store.Transaction(ctx, func(_ context.Context, joined *Repository) error {
			assert.Same(t, repo, joined)
			require.NoError(t, joined.AppendTransfer(&TransferRecord{Sender: "alice", Recipient: "treasury", Asset: "native", Amount: 5}))
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		account, err := repo.UserAccount("genesis", "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(0), account.Version)
		assert.Zero(t, account.TotalOrders)

		transfers, err := repo.Transfers("alice")
		require.NoError(t, err)
		assert.Empty(t, transfers)
		return nil
	}))
}

func TestLookupsReturnTypedNotFound(t *testing.T) {
	store := openTestStorage(t)

	err := store.Transaction(context.Background(), func(_ context.Context, repo *Repository) error {
		_, err := repo.RootConfig()
		assert.ErrorIs(t, err, failure.ErrNotInitialized)
		_, err = repo.Phase("missing")
		assert.ErrorIs(t, err, failure.ErrPhaseNotFound)
		_, err = repo.Tier("missing", 1)
		assert.ErrorIs(t, err, failure.ErrTierNotFound)
		_, err = repo.PaymentToken("missing", "mint")
		assert.ErrorIs(t, err, failure.ErrPaymentTokenNotFound)
		_, err = repo.Order("missing", "alice", 1)
		assert.ErrorIs(t, err, failure.ErrOrderNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestOrderSerializesReservedItems(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	mint := "usdc"

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		return repo.SaveOrder(&Order{
			PhaseName:        "genesis",
			User:             "alice",
			OrderID:          1,
			TierID:           1,
			Source:           OrderSourceBuyWithToken,
			Quantity:         3,
			TokenIDs:         []uint64{4, 5, 6},
			IsTokenIDsMinted: []bool{false, true, false},
			PaymentMint:      &mint,
		})
	}))

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		order, err := repo.Order("genesis", "alice", 1)
		require.NoError(t, err)
		assert.Equal(t, []uint64{4, 5, 6}, order.TokenIDs)
		assert.Equal(t, []bool{false, true, false}, order.IsTokenIDsMinted)
		require.NotNil(t, order.PaymentMint)
		assert.Equal(t, "usdc", *order.PaymentMint)
		return nil
	}))
}

func TestIssuedItemIsUnique(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	item := func() *IssuedItem {
		return &IssuedItem{PhaseName: "genesis", TierID: 1, ItemID: 7, Owner: "alice", Collection: "c", Handle: uuid.NewString()}
	}

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		return repo.CreateIssuedItem(item())
	}))
	err := store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		return repo.CreateIssuedItem(item())
	})
	assert.ErrorIs(t, err, failure.ErrItemAlreadyIssued)
}

func TestMaxUserTierMint(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		minted, err := repo.MaxUserTierMint("genesis", 1)
		require.NoError(t, err)
		assert.Zero(t, minted)

		for user, total := range map[string]uint64{"alice": 3, "bob": 1} {
			account := &UserTierAccount{PhaseName: "genesis", TierID: 1, User: user}
			account.TotalMint = total
			if err := repo.SaveUserTierAccount(account); err != nil {
				return err
			}
		}
		other := &UserTierAccount{PhaseName: "genesis", TierID: 2, User: "carol"}
		other.TotalMint = 7
		return repo.SaveUserTierAccount(other)
	}))

	require.NoError(t, store.Transaction(ctx, func(_ context.Context, repo *Repository) error {
		minted, err := repo.MaxUserTierMint("genesis", 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), minted)
		return nil
	}))
}
