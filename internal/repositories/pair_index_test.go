package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKey(t *testing.T) {
	assert.Equal(t, "alice/bob", PairKey("alice", "bob"))
	assert.Equal(t, "alice/bob", PairKey("bob", "alice"))
	assert.Equal(t, [2]string{"alice", "bob"}, splitPairKey(PairKey("bob", "alice")))
	assert.Equal(t, [2]string{"a|b", "c"}, splitPairKey(PairKey("c", "a|b")))

	assert.NotEqual(t, PairKey("a|b", "c"), PairKey("a", "b|c"))
	assert.NotEqual(t, PairKey("a-b", "c"), PairKey("a", "b-c"))
}

func TestGormPairIndex(t *testing.T) {
	ctx := context.Background()
	idx := newSQLitePairIndex(t)
	key := PairKey("alice", "bob")

	id, err := idx.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, id)

	owner, err := idx.Claim(ctx, key, "room-1")
	require.NoError(t, err)
	assert.Equal(t, "room-1", owner)

	owner, err = idx.Claim(ctx, key, "room-2")
	require.NoError(t, err)
	assert.Equal(t, "room-1", owner, "first claim wins")

	id, err = idx.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "room-1", id)
}
