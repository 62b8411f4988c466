package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibecheckhq/vibecheck/credpool"
	"github.com/vibecheckhq/vibecheck/model"
)

type fakePostAPI struct {
	// Scripted responses consumed in order; the last entry repeats.
	responses []fakeListing
	calls     []string
}

type fakeListing struct {
	posts []ScrapedPost
	err   error
}

func (a *fakePostAPI) FetchRecentPosts(identity model.Identity, externalHandle string) ([]ScrapedPost, error) {
	a.calls = append(a.calls, externalHandle)
	if len(a.responses) == 0 {
		return nil, nil
	}
	next := a.responses[0]
	if len(a.responses) > 1 {
		a.responses = a.responses[1:]
	}
	return next.posts, next.err
}

func newTestDiscoverer(t *testing.T, store *fakeStore, api PostAPI) (*Discoverer, *credpool.Pool) {
	t.Helper()
	cfg := testConfig()
	pool, err := credpool.NewPool(nil, &cfg)
	require.NoError(t, err)
	pool.AddIdentity(&model.Identity{Id: "id-1", Handle: "scout_one", State: model.IdentityStateActive})
	pool.AddIdentity(&model.Identity{Id: "id-2", Handle: "scout_two", State: model.IdentityStateActive})
	return NewDiscoverer(store, api, pool, &cfg), pool
}

func TestDiscoverStoresRecentPosts(t *testing.T) {
	store := newFakeStore()
	store.targets["t1"] = &model.Target{Id: "t1", ExternalHandle: "burna", Active: true}
	api := &fakePostAPI{responses: []fakeListing{{posts: []ScrapedPost{
		{ExternalId: "ext1", Caption: "omo", LikeCount: 100},
		{ExternalId: "ext2", Caption: "wahala", LikeCount: 50},
	}}}}
	d, _ := newTestDiscoverer(t, store, api)

	written, err := d.Discover(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, []string{"burna"}, api.calls)
	assert.Len(t, store.discovered["t1"], 2)
}

func TestDiscoverRefreshesKnownPosts(t *testing.T) {
	store := newFakeStore()
	store.targets["t1"] = &model.Target{Id: "t1", ExternalHandle: "burna", Active: true}
	api := &fakePostAPI{responses: []fakeListing{
		{posts: []ScrapedPost{{ExternalId: "ext1", LikeCount: 100}}},
		{posts: []ScrapedPost{{ExternalId: "ext1", LikeCount: 250}}},
	}}
	d, _ := newTestDiscoverer(t, store, api)

	_, err := d.Discover(context.Background(), "t1")
	require.NoError(t, err)
	_, err = d.Discover(context.Background(), "t1")
	require.NoError(t, err)

	// A re-listed post stays a single row with its counters refreshed.
	require.Len(t, store.discovered["t1"], 1)
	assert.Equal(t, int64(250), store.discovered["t1"]["ext1"].LikeCount)
}

func TestDiscoverSkipsInactiveTarget(t *testing.T) {
	store := newFakeStore()
	store.targets["t1"] = &model.Target{Id: "t1", ExternalHandle: "burna", Active: false}
	api := &fakePostAPI{}
	d, _ := newTestDiscoverer(t, store, api)

	written, err := d.Discover(context.Background(), "t1")
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Empty(t, api.calls)
}

func TestDiscoverRotatesIdentityOnRateLimit(t *testing.T) {
	store := newFakeStore()
	store.targets["t1"] = &model.Target{Id: "t1", ExternalHandle: "burna", Active: true}
	api := &fakePostAPI{responses: []fakeListing{
		{err: ErrRateLimited},
		{posts: []ScrapedPost{{ExternalId: "ext1"}}},
	}}
	d, pool := newTestDiscoverer(t, store, api)

	written, err := d.Discover(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.Len(t, api.calls, 2)

	// The rate limited identity cools down, the other one is still available.
	_, err = pool.Checkout()
	assert.NoError(t, err)
}

func TestDiscoverSurfacesExhaustedPool(t *testing.T) {
	store := newFakeStore()
	store.targets["t1"] = &model.Target{Id: "t1", ExternalHandle: "burna", Active: true}
	cfg := testConfig()
	pool, err := credpool.NewPool(nil, &cfg)
	require.NoError(t, err)
	d := NewDiscoverer(store, &fakePostAPI{}, pool, &cfg)

	_, err = d.Discover(context.Background(), "t1")
	assert.ErrorIs(t, err, credpool.ErrNoAvailableIdentity)
}
