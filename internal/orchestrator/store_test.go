package orchestrator

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedisClient is an in-memory stand-in for the real go-redis-backed
// RedisClient, enough to exercise RedisStore's logic without a live Redis.
type zmember struct {
	member string
	score  float64
}

type fakeRedisClient struct {
	values     map[string][]byte
	sets       map[string]map[string]struct{}
	sortedSets map[string][]zmember
	ttl        map[string]time.Time
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{
		values:     make(map[string][]byte),
		sets:       make(map[string]map[string]struct{}),
		sortedSets: make(map[string][]zmember),
		ttl:        make(map[string]time.Time),
	}
}

func (f *fakeRedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.values[key] = value
	if ttl > 0 {
		f.ttl[key] = time.Now().Add(ttl)
	} else {
		delete(f.ttl, key)
	}
	return nil
}

func (f *fakeRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	if expiry, ok := f.ttl[key]; ok && time.Now().After(expiry) {
		delete(f.values, key)
		return nil, assert.AnError
	}
	v, ok := f.values[key]
	if !ok {
		return nil, assert.AnError
	}
	return v, nil
}

func (f *fakeRedisClient) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
		delete(f.ttl, k)
	}
	return nil
}

func (f *fakeRedisClient) SAdd(ctx context.Context, key string, members ...string) error {
	if f.sets[key] == nil {
		f.sets[key] = make(map[string]struct{})
	}
	for _, m := range members {
		f.sets[key][m] = struct{}{}
	}
	return nil
}

func (f *fakeRedisClient) SRem(ctx context.Context, key string, members ...string) error {
	for _, m := range members {
		delete(f.sets[key], m)
	}
	return nil
}

func (f *fakeRedisClient) SMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	for m := range f.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeRedisClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	members := f.sortedSets[key]
	for i, m := range members {
		if m.member == member {
			members[i].score = score
			f.sortedSets[key] = members
			return nil
		}
	}
	f.sortedSets[key] = append(members, zmember{member: member, score: score})
	return nil
}

func (f *fakeRedisClient) sortedAscending(key string) []zmember {
	members := append([]zmember(nil), f.sortedSets[key]...)
	sort.Slice(members, func(i, j int) bool { return members[i].score < members[j].score })
	return members
}

func (f *fakeRedisClient) ZRangeAscending(ctx context.Context, key string, start, stop int64) ([]string, error) {
	members := f.sortedAscending(key)
	n := int64(len(members))
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 || start >= n || stop < 0 {
		return nil, nil
	}
	if stop >= n {
		stop = n - 1
	}
	var out []string
	for i := start; i <= stop; i++ {
		out = append(out, members[i].member)
	}
	return out, nil
}

func (f *fakeRedisClient) ZRemRangeByRankAscending(ctx context.Context, key string, count int64) error {
	if count <= 0 {
		return nil
	}
	members := f.sortedAscending(key)
	if count > int64(len(members)) {
		count = int64(len(members))
	}
	remove := make(map[string]struct{}, count)
	for i := int64(0); i < count; i++ {
		remove[members[i].member] = struct{}{}
	}
	var kept []zmember
	for _, m := range f.sortedSets[key] {
		if _, gone := remove[m.member]; !gone {
			kept = append(kept, m)
		}
	}
	f.sortedSets[key] = kept
	return nil
}

func (f *fakeRedisClient) ZCard(ctx context.Context, key string) (int64, error) {
	return int64(len(f.sortedSets[key])), nil
}

func TestRedisStoreSaveAndLoadJobRoundTrip(t *testing.T) {
	client := newFakeRedisClient()
	store := NewRedisStore(client, "test:", time.Second)
	ctx := context.Background()

	job := &Job{ID: "job-1", Queue: QueueDiscovery, OrganizationID: "org-1", Status: JobActive}
	require.NoError(t, store.SaveJob(ctx, job))

	loaded, err := store.LoadJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.OrganizationID, loaded.OrganizationID)
}

func TestRedisStoreStalledJobIDsDetectsExpiredHeartbeat(t *testing.T) {
	client := newFakeRedisClient()
	store := NewRedisStore(client, "test:", 10*time.Millisecond)
	ctx := context.Background()

	job := &Job{ID: "job-1", Status: JobActive}
	require.NoError(t, store.SaveJob(ctx, job))
	require.NoError(t, store.Heartbeat(ctx, job.ID))

	time.Sleep(20 * time.Millisecond)

	stalled, err := store.StalledJobIDs(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Contains(t, stalled, "job-1")
}

func TestRedisStoreRetainCompletedTrimsToMax(t *testing.T) {
	client := newFakeRedisClient()
	store := NewRedisStore(client, "test:", time.Second)
	ctx := context.Background()

	base := time.Now()
	total := completedRetention + 5
	for i := 0; i < total; i++ {
		job := &Job{ID: jobIDFor(i), Status: JobCompleted, UpdatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, store.RetainCompleted(ctx, QueueDiscovery, job))
	}

	indexKey := store.retainKey(QueueDiscovery, "completed") + ":index"
	count, err := client.ZCard(ctx, indexKey)
	require.NoError(t, err)
	assert.LessOrEqual(t, count, int64(completedRetention))

	kept, err := client.ZRangeAscending(ctx, indexKey, 0, -1)
	require.NoError(t, err)
	require.Len(t, kept, completedRetention)
	for i, id := range kept {
		assert.Equal(t, jobIDFor(total-completedRetention+i), id)
	}
}

func jobIDFor(i int) string {
	return "job-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
