package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreWriteReadDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Write(ctx, "rooms/R1/offer", map[string]string{"sdp": "v=0"}))

	var out map[string]string
	ok, err := s.Read(ctx, "rooms/R1/offer", &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v=0", out["sdp"])

	ok, err = s.Read(ctx, "rooms/R1/answer", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreDeleteSubtree(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Write(ctx, "rooms/R1/candidates/web/1", "a"))
	require.NoError(t, s.Write(ctx, "rooms/R1/candidates/web/2", "b"))
	require.NoError(t, s.Write(ctx, "rooms/R1/calleeReady", true))

	require.NoError(t, s.Delete(ctx, "rooms/R1/candidates"))

	var v string
	ok, err := s.Read(ctx, "rooms/R1/candidates/web/1", &v)
	require.NoError(t, err)
	assert.False(t, ok)

	// Sibling paths survive a subtree delete.
	var ready bool
	ok, err = s.Read(ctx, "rooms/R1/calleeReady", &ready)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ready)
}

func TestMemoryStoreSubscribeReplaysAndDelivers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Write(ctx, "k", 1))

	var got []string
	sub, err := s.Subscribe(ctx, "k", func(data []byte) {
		got = append(got, string(data))
	})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.Write(ctx, "k", 2))
	require.NoError(t, s.Delete(ctx, "k"))

	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0])
	assert.Equal(t, "2", got[1])
	assert.Equal(t, "", got[2]) // delete delivers nil
}

func TestMemoryStoreSubscribeStopsAfterClose(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	fired := 0
	sub, err := s.Subscribe(ctx, "k", func([]byte) { fired++ })
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "k", 1))
	before := fired

	sub.Close()
	sub.Close() // idempotent

	require.NoError(t, s.Write(ctx, "k", 2))
	assert.Equal(t, before, fired)
}

func TestMemoryStoreSubscribeChildrenReplayOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Write(ctx, "q/b", 2))
	require.NoError(t, s.Write(ctx, "q/a", 1))

	var keys []string
	sub, err := s.SubscribeChildren(ctx, "q", func(key string, _ []byte) {
		keys = append(keys, key)
	})
	require.NoError(t, err)
	defer sub.Close()

	// Existing children replay in key order, then live ones append.
	require.NoError(t, s.Write(ctx, "q/c", 3))
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	// Grandchildren are not direct children.
	require.NoError(t, s.Write(ctx, "q/d/e", 4))
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMemoryStoreCallbackMayCloseOwnSubscription(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	fired := 0
	var sub Subscription
	sub, err := s.Subscribe(ctx, "k", func(data []byte) {
		fired++
		if data != nil {
			sub.Close()
		}
	})
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "k", 1))
	require.NoError(t, s.Write(ctx, "k", 2))

	// Replay (nil) + first write; second write lands after Close.
	assert.Equal(t, 2, fired)
}
