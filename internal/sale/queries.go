package sale

import (
	"context"

	"nodesale/internal/event"
	"nodesale/internal/storage"
)

func (e *Engine) view(ctx context.Context, fn func(repo *storage.Repository) error) error {
	return e.store.Transaction(ctx, func(_ context.Context, repo *storage.Repository) error {
		return fn(repo)
	})
}

func (e *Engine) Phase(ctx context.Context, name string) (phase *storage.SalePhase, err error) {
	err = e.view(ctx, func(repo *storage.Repository) error {
		phase, err = repo.Phase(name)
		return err
	})
	return phase, err
}

func (e *Engine) Tier(ctx context.Context, phaseName string, tierID uint32) (tier *storage.Tier, err error) {
	err = e.view(ctx, func(repo *storage.Repository) error {
		tier, err = repo.Tier(phaseName, tierID)
		return err
	})
	return tier, err
}

func (e *Engine) Tiers(ctx context.Context, phaseName string) (tiers []*storage.Tier, err error) {
	err = e.view(ctx, func(repo *storage.Repository) error {
		if _, err := repo.Phase(phaseName); err != nil {
			return err
		}
		tiers, err = repo.Tiers(phaseName)
		return err
	})
	return tiers, err
}

func (e *Engine) PaymentToken(ctx context.Context, phaseName, mint string) (token *storage.PaymentToken, err error) {
	err = e.view(ctx, func(repo *storage.Repository) error {
		token, err = repo.PaymentToken(phaseName, mint)
		return err
	})
	return token, err
}

func (e *Engine) PaymentTokens(ctx context.Context, phaseName string) (tokens []*storage.PaymentToken, err error) {
	err = e.view(ctx, func(repo *storage.Repository) error {
		tokens, err = repo.PaymentTokens(phaseName)
		return err
	})
	return tokens, err
}

// User returns the user's phase totals. Users who never interacted with the
// phase get zero totals.
func (e *Engine) User(ctx context.Context, phaseName, user string) (account *storage.UserAccount, err error) {
	err = e.view(ctx, func(repo *storage.Repository) error {
		if _, err := repo.Phase(phaseName); err != nil {
			return err
		}
		account, err = repo.UserAccount(phaseName, user)
		return err
	})
	return account, err
}

func (e *Engine) UserTier(ctx context.Context, phaseName string, tierID uint32, user string) (account *storage.UserTierAccount, err error) {
	err = e.view(ctx, func(repo *storage.Repository) error {
		if _, err := repo.Tier(phaseName, tierID); err != nil {
			return err
		}
		account, err = repo.UserTierAccount(phaseName, tierID, user)
		return err
	})
	return account, err
}

func (e *Engine) Order(ctx context.Context, phaseName, user string, orderID uint64) (order *storage.Order, err error) {
	err = e.view(ctx, func(repo *storage.Repository) error {
		order, err = repo.Order(phaseName, user, orderID)
		return err
	})
	return order, err
}

func (e *Engine) Orders(ctx context.Context, phaseName, user string) (orders []*storage.Order, err error) {
	err = e.view(ctx, func(repo *storage.Repository) error {
		orders, err = repo.Orders(phaseName, user)
		return err
	})
	return orders, err
}

// Events returns the logged events of a phase, oldest first. An empty phase
// name lists every phase.
func (e *Engine) Events(ctx context.Context, phaseName string, limit int) ([]event.Event, error) {
	var events []event.Event
	err := e.view(ctx, func(repo *storage.Repository) error {
		records, err := repo.Events(phaseName, limit)
		if err != nil {
			return err
		}
		events = make([]event.Event, 0, len(records))
		for _, record := range records {
			events = append(events, event.FromRecord(record))
		}
		return nil
	})
	return events, err
}
