// Package issuance records the items produced for buyers. The Registry writes
// through the caller's sale transaction when there is one, so an item is
// either issued together with the order update that asked for it or not at
// all.
package issuance

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nodesale/internal/failure"
	"nodesale/internal/storage"
)

type Request struct {
	Owner      string
	Collection string
	Phase      string
	TierID     uint32
	ItemID     uint64
	Name       string
	Symbol     string
	URI        string
}

// Asset identifies an issued item.
type Asset struct {
	Handle     string `json:"handle"`
	Owner      string `json:"owner"`
	Collection string `json:"collection"`
	Phase      string `json:"phase"`
	TierID     uint32 `json:"tier_id"`
	ItemID     uint64 `json:"item_id"`
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	URI        string `json:"uri"`
}

type Registry struct {
	store  storage.Storage
	logger *zap.Logger
}

func NewRegistry(store storage.Storage, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger}
}

// ItemName is the display name of an item: the phase display name followed by
// the item number.
func ItemName(displayName string, itemID uint64) string {
	return fmt.Sprintf("%s #%d", displayName, itemID)
}

// ItemURI joins the phase metadata base URI, tier and item id.
func ItemURI(baseURI string, tierID uint32, itemID uint64) string {
	if baseURI == "" {
		return ""
	}
	return fmt.Sprintf("%s/%d/%d.json", strings.TrimRight(baseURI, "/"), tierID, itemID)
}

// Issue creates the item. A second request for the same phase, tier and item
// id fails with ErrItemAlreadyIssued.
func (r *Registry) Issue(ctx context.Context, req Request) (Asset, error) {
	if req.Owner == "" || req.Collection == "" || req.Phase == "" {
		return Asset{}, failure.Wrap(failure.ErrIssuanceFailed, "owner, collection and phase required")
	}
	if req.ItemID == 0 {
		return Asset{}, failure.Wrap(failure.ErrIssuanceFailed, "item id must be positive")
	}

	item := &storage.IssuedItem{
		PhaseName:  req.Phase,
		TierID:     req.TierID,
		ItemID:     req.ItemID,
		Owner:      req.Owner,
		Collection: req.Collection,
		Handle:     uuid.NewString(),
		Name:       req.Name,
		Symbol:     req.Symbol,
		URI:        req.URI,
	}
	err := r.store.Transaction(ctx, func(_ context.Context, repo *storage.Repository) error {
		return repo.CreateIssuedItem(item)
	})
	if err != nil {
		return Asset{}, err
	}

	r.logger.Info("item issued",
		zap.String("phase", item.PhaseName),
		zap.Uint32("tier", item.TierID),
		zap.Uint64("item", item.ItemID),
		zap.String("owner", item.Owner),
		zap.String("handle", item.Handle),
	)
	return toAsset(item), nil
}

// Items lists the items issued in a tier ordered by item id.
func (r *Registry) Items(ctx context.Context, phase string, tierID uint32) ([]Asset, error) {
	var assets []Asset
	err := r.store.Transaction(ctx, func(_ context.Context, repo *storage.Repository) error {
		items, err := repo.IssuedItems(phase, tierID)
		if err != nil {
			return err
		}
		assets = make([]Asset, 0, len(items))
		for _, item := range items {
			assets = append(assets, toAsset(item))
		}
		return nil
	})
	return assets, err
}

func toAsset(item *storage.IssuedItem) Asset {
	return Asset{
		Handle:     item.Handle,
		Owner:      item.Owner,
		Collection: item.Collection,
		Phase:      item.PhaseName,
		TierID:     item.TierID,
		ItemID:     item.ItemID,
		Name:       item.Name,
		Symbol:     item.Symbol,
		URI:        item.URI,
	}
}
