package issuance

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodesale/internal/failure"
	"nodesale/internal/storage"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := storage.NewSqliteStorage(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewRegistry(store, nil)
}

func TestIssueOncePerItem(t *testing.T) {
	registry := newRegistry(t)
	ctx := context.Background()
	req := Request{
		Owner:      "alice",
		Collection: "genesis-nodes",
		Phase:      "genesis",
		TierID:     1,
		ItemID:     1,
		Name:       ItemName("Genesis Node", 1),
		Symbol:     "GN",
		URI:        ItemURI("https://meta.example/genesis/", 1, 1),
	}

	asset, err := registry.Issue(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, asset.Handle)
	assert.Equal(t, "Genesis Node #1", asset.Name)
	assert.Equal(t, "https://meta.example/genesis/1/1.json", asset.URI)

	_, err = registry.Issue(ctx, req)
	assert.ErrorIs(t, err, failure.ErrItemAlreadyIssued)

	items, err := registry.Items(ctx, "genesis", 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, asset.Handle, items[0].Handle)
}

func TestIssueRejectsIncompleteRequest(t *testing.T) {
	registry := newRegistry(t)

	_, err := registry.Issue(context.Background(), Request{Owner: "alice", Phase: "genesis", ItemID: 1})
	assert.ErrorIs(t, err, failure.ErrIssuanceFailed)

	_, err = registry.Issue(context.Background(), Request{Owner: "alice", Collection: "c", Phase: "genesis"})
	assert.ErrorIs(t, err, failure.ErrIssuanceFailed)
}

func TestItemURIWithoutBase(t *testing.T) {
	assert.Empty(t, ItemURI("", 1, 1))
}
