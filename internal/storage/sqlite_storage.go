package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"nodesale/internal/failure"
	"nodesale/internal/logger"
)

type SqliteStorage struct {
	db *gorm.DB
}

// NewSqliteStorage opens path and migrates every sale table. Writers are
// funnelled through a single connection so sqlite never interleaves two
// transactions.
func NewSqliteStorage(path string) (*SqliteStorage, error) {

	logger.Debug("initializing database...", zap.String("path", path))
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(allModels()...); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Debug("initializing database... done")
	return &SqliteStorage{
		db: db,
	}, nil
}

func (s *SqliteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn in a database transaction. When ctx already belongs to
// a transaction fn joins it instead of opening a nested one.
func (s *SqliteStorage) Transaction(ctx context.Context, fn func(ctx context.Context, repo *Repository) error) error {
	if repo, ok := FromContext(ctx); ok {
		return fn(ctx, repo)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := &Repository{db: tx}
		return fn(WithRepository(ctx, repo), repo)
	})
}

// Repository is the transaction-scoped view of the sale records.
type Repository struct {
	db *gorm.DB
}

func (r *Repository) locking() *gorm.DB {
	return r.db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error, base *failure.Error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return failure.Wrap(base, format, args...)
	}
	return err
}

// saveVersioned inserts a record whose version is zero, otherwise updates it
// only if nobody else bumped the version since it was read.
func (r *Repository) saveVersioned(model any, version *int64, what string) error {
	prev := *version
	if prev == 0 {
		*version = 1
		if err := r.db.Create(model).Error; err != nil {
			*version = 0
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return failure.Wrap(failure.ErrConcurrentUpdate, "%s created concurrently", what)
			}
			return fmt.Errorf("create %s: %w", what, err)
		}
		return nil
	}

	*version = prev + 1
	res := r.db.Model(model).Where("version = ?", prev).Select("*").Updates(model)
	if res.Error != nil {
		*version = prev
		return fmt.Errorf("update %s: %w", what, res.Error)
	}
	if res.RowsAffected == 0 {
		*version = prev
		return failure.Wrap(failure.ErrConcurrentUpdate, "%s at version %d", what, prev)
	}
	return nil
}

func (r *Repository) RootConfig() (*RootConfig, error) {
	var cfg RootConfig
	if err := r.locking().First(&cfg, "id = ?", 1).Error; err != nil {
		return nil, notFound(err, failure.ErrNotInitialized, "root config")
	}
	return &cfg, nil
}

func (r *Repository) SaveRootConfig(cfg *RootConfig) error {
	cfg.ID = 1
	return r.saveVersioned(cfg, &cfg.Version, "root config")
}

func (r *Repository) Phase(name string) (*SalePhase, error) {
	var phase SalePhase
	if err := r.locking().First(&phase, "name = ?", name).Error; err != nil {
		return nil, notFound(err, failure.ErrPhaseNotFound, "phase %q", name)
	}
	return &phase, nil
}

func (r *Repository) SavePhase(phase *SalePhase) error {
	return r.saveVersioned(phase, &phase.Version, "phase "+phase.Name)
}

func (r *Repository) Tier(phaseName string, tierID uint32) (*Tier, error) {
	var tier Tier
	if err := r.locking().First(&tier, "phase_name = ? AND tier_id = ?", phaseName, tierID).Error; err != nil {
		return nil, notFound(err, failure.ErrTierNotFound, "phase %q tier %d", phaseName, tierID)
	}
	return &tier, nil
}

func (r *Repository) Tiers(phaseName string) ([]*Tier, error) {
	var tiers []*Tier
	err := r.db.Where("phase_name = ?", phaseName).Order("tier_id").Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *Repository) SaveTier(tier *Tier) error {
	return r.saveVersioned(tier, &tier.Version, fmt.Sprintf("tier %s/%d", tier.PhaseName, tier.TierID))
}

func (r *Repository) PaymentToken(phaseName, mint string) (*PaymentToken, error) {
	var token PaymentToken
	if err := r.locking().First(&token, "phase_name = ? AND mint = ?", phaseName, mint).Error; err != nil {
		return nil, notFound(err, failure.ErrPaymentTokenNotFound, "phase %q mint %q", phaseName, mint)
	}
	return &token, nil
}

func (r *Repository) PaymentTokens(phaseName string) ([]*PaymentToken, error) {
	var tokens []*PaymentToken
	if err := r.db.Where("phase_name = ?", phaseName).Order("mint").Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *Repository) SavePaymentToken(token *PaymentToken) error {
	return r.saveVersioned(token, &token.Version, "payment token "+token.PhaseName+"/"+token.Mint)
}

// UserAccount returns the user's phase record, or a fresh unsaved one
// (version zero) when the user has not interacted with the phase yet.
func (r *Repository) UserAccount(phaseName, user string) (*UserAccount, error) {
	var account UserAccount
	err := r.locking().First(&account, "phase_name = ? AND user = ?", phaseName, user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &UserAccount{PhaseName: phaseName, User: user}, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *Repository) SaveUserAccount(account *UserAccount) error {
	return r.saveVersioned(account, &account.Version, "user "+account.PhaseName+"/"+account.User)
}

func (r *Repository) UserTierAccount(phaseName string, tierID uint32, user string) (*UserTierAccount, error) {
	var account UserTierAccount
	err := r.locking().First(&account, "phase_name = ? AND tier_id = ? AND user = ?", phaseName, tierID, user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &UserTierAccount{PhaseName: phaseName, TierID: tierID, User: user}, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *Repository) SaveUserTierAccount(account *UserTierAccount) error {
	return r.saveVersioned(account, &account.Version, fmt.Sprintf("user tier %s/%d/%s", account.PhaseName, account.TierID, account.User))
}

// MaxUserTierMint is the largest total_mint any user holds in the tier.
func (r *Repository) MaxUserTierMint(phaseName string, tierID uint32) (uint64, error) {
	var minted uint64
	err := r.db.Model(&UserTierAccount{}).
		Select("COALESCE(MAX(total_mint), 0)").
		Where("phase_name = ? AND tier_id = ?", phaseName, tierID).
		Scan(&minted).Error
	if err != nil {
		return 0, err
	}
	return minted, nil
}

func (r *Repository) Order(phaseName, user string, orderID uint64) (*Order, error) {
	var order Order
	err := r.locking().First(&order, "phase_name = ? AND user = ? AND order_id = ?", phaseName, user, orderID).Error
	if err != nil {
		return nil, notFound(err, failure.ErrOrderNotFound, "phase %q user %q order %d", phaseName, user, orderID)
	}
	return &order, nil
}

func (r *Repository) Orders(phaseName, user string) ([]*Order, error) {
	var orders []*Order
	err := r.db.Where("phase_name = ? AND user = ?", phaseName, user).Order("order_id").Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *Repository) SaveOrder(order *Order) error {
	return r.saveVersioned(order, &order.Version, fmt.Sprintf("order %s/%s/%d", order.PhaseName, order.User, order.OrderID))
}

func (r *Repository) Balance(account, asset string) (*Balance, error) {
	var balance Balance
	err := r.locking().First(&balance, "account = ? AND asset = ?", account, asset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Balance{Account: account, Asset: asset}, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *Repository) SaveBalance(balance *Balance) error {
	return r.saveVersioned(balance, &balance.Version, "balance "+balance.Account+"/"+balance.Asset)
}

func (r *Repository) AppendTransfer(record *TransferRecord) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("append transfer: %w", err)
	}
	return nil
}

func (r *Repository) Transfers(account string) ([]*TransferRecord, error) {
	var records []*TransferRecord
	err := r.db.Where("sender = ? OR recipient = ?", account, account).Order("id").Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository) CreateIssuedItem(item *IssuedItem) error {
	if err := r.db.Create(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return failure.Wrap(failure.ErrItemAlreadyIssued, "phase %q tier %d item %d", item.PhaseName, item.TierID, item.ItemID)
		}
		return fmt.Errorf("create issued item: %w", err)
	}
	return nil
}

func (r *Repository) IssuedItems(phaseName string, tierID uint32) ([]*IssuedItem, error) {
	var items []*IssuedItem
	err := r.db.Where("phase_name = ? AND tier_id = ?", phaseName, tierID).Order("item_id").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Repository) AppendEvent(record *EventRecord) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (r *Repository) Events(phaseName string, limit int) ([]*EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []*EventRecord
	tx := r.db.Order("created_at").Order("id").Limit(limit)
	if phaseName != "" {
		tx = tx.Where("phase_name = ?", phaseName)
	}
	if err := tx.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
