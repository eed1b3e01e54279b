package storage

import (
	"context"
)

// Storage runs units of work atomically. Every write made through the
// Repository handed to fn, including those of collaborators that pick the
// repository up from the context, commits or rolls back together.
type Storage interface {
	Transaction(ctx context.Context, fn func(ctx context.Context, repo *Repository) error) error
	Close() error
}

type repositoryKey struct{}

// WithRepository returns ctx carrying repo.
func WithRepository(ctx context.Context, repo *Repository) context.Context {
	return context.WithValue(ctx, repositoryKey{}, repo)
}

// FromContext returns the repository of the transaction ctx belongs to.
func FromContext(ctx context.Context) (*Repository, bool) {
	repo, ok := ctx.Value(repositoryKey{}).(*Repository)
	return repo, ok && repo != nil
}
