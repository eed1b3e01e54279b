// Package payment moves sale proceeds between accounts. The Ledger keeps
// balances in the sale database so a transfer made while a sale operation is
// running commits or rolls back with that operation.
package payment

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"nodesale/internal/failure"
	"nodesale/internal/fixedpoint"
	"nodesale/internal/storage"
)

// NativeAsset names the chain currency in balances and transfers.
const NativeAsset = "native"

type Transfer struct {
	From   string
	To     string
	Asset  string
	Amount uint64
	Memo   string
}

type Ledger struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewLedger(store storage.Storage, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger}
}

// Transfer debits From and credits To. Zero amounts are accepted and move
// nothing.
func (l *Ledger) Transfer(ctx context.Context, t Transfer) error {
	if strings.TrimSpace(t.From) == "" || strings.TrimSpace(t.To) == "" {
		return failure.Wrap(failure.ErrTransferFailed, "transfer endpoints required")
	}
	if t.Asset == "" {
		t.Asset = NativeAsset
	}
	if t.Amount == 0 {
		return nil
	}
	return l.store.Transaction(ctx, func(_ context.Context, repo *storage.Repository) error {
		from, err := repo.Balance(t.From, t.Asset)
		if err != nil {
			return err
		}
		if from.Amount < t.Amount {
			return failure.Wrap(failure.ErrInsufficientFunds, "%s holds %d %s, needs %d", t.From, from.Amount, t.Asset, t.Amount)
		}
		from.Amount -= t.Amount
		if err := repo.SaveBalance(from); err != nil {
			return err
		}

		to, err := repo.Balance(t.To, t.Asset)
		if err != nil {
			return err
		}
		credited, err := fixedpoint.Add(to.Amount, t.Amount)
		if err != nil {
			return err
		}
		to.Amount = credited
		if err := repo.SaveBalance(to); err != nil {
			return err
		}

		l.logger.Debug("transfer",
			zap.String("from", t.From),
			zap.String("to", t.To),
			zap.String("asset", t.Asset),
			zap.Uint64("amount", t.Amount),
			zap.String("memo", t.Memo),
		)
		return repo.AppendTransfer(&storage.TransferRecord{
			Sender:    t.From,
			Recipient: t.To,
			Asset:     t.Asset,
			Amount:    t.Amount,
			Memo:      t.Memo,
		})
	})
}

// Deposit credits account with newly available funds.
func (l *Ledger) Deposit(ctx context.Context, account, asset string, amount uint64) error {
	if strings.TrimSpace(account) == "" {
		return failure.Wrap(failure.ErrInvalidArgument, "account required")
	}
	if asset == "" {
		asset = NativeAsset
	}
	return l.store.Transaction(ctx, func(_ context.Context, repo *storage.Repository) error {
		balance, err := repo.Balance(account, asset)
		if err != nil {
			return err
		}
		credited, err := fixedpoint.Add(balance.Amount, amount)
		if err != nil {
			return err
		}
		balance.Amount = credited
		return repo.SaveBalance(balance)
	})
}

func (l *Ledger) Balance(ctx context.Context, account, asset string) (uint64, error) {
	if asset == "" {
		asset = NativeAsset
	}
	var amount uint64
	err := l.store.Transaction(ctx, func(_ context.Context, repo *storage.Repository) error {
		balance, err := repo.Balance(account, asset)
		if err != nil {
			return err
		}
		amount = balance.Amount
		return nil
	})
	return amount, err
}

// Transfers lists the movements account took part in, oldest first.
func (l *Ledger) Transfers(ctx context.Context, account string) ([]*storage.TransferRecord, error) {
	var records []*storage.TransferRecord
	err := l.store.Transaction(ctx, func(_ context.Context, repo *storage.Repository) error {
		var err error
		records, err = repo.Transfers(account)
		return err
	})
	return records, err
}
