package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/gatekit/gatekit/internal/authz"
)

type fakeUserLister struct {
	users []string
}

func (f *fakeUserLister) ListAssignedUserIDs(ctx context.Context) ([]string, error) {
	return f.users, nil
}

type fakeResolver struct {
	mu       sync.Mutex
	resolved []string
	err      error
}

func (f *fakeResolver) ResolveEffectivePermissions(ctx context.Context, userID string) ([]authz.EffectivePermission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.resolved = append(f.resolved, userID)
	return nil, nil
}

func warmTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewWarmEffectiveCacheTask(WarmCachePayload{Reason: "test"})
	require.NoError(t, err)
	return task
}

func TestWarmCacheResolvesEveryAssignedUser(t *testing.T) {
	lister := &fakeUserLister{users: []string{"u1", "u2", "u3"}}
	resolver := &fakeResolver{}
	job := NewWarmCacheJob(lister, resolver, nil, nil, 2)

	require.NoError(t, job.Handle(context.Background(), warmTask(t)))
	require.ElementsMatch(t, []string{"u1", "u2", "u3"}, resolver.resolved)
}

func TestWarmCacheNoUsersIsNoop(t *testing.T) {
	job := NewWarmCacheJob(&fakeUserLister{}, &fakeResolver{}, nil, nil, 0)

	require.NoError(t, job.Handle(context.Background(), warmTask(t)))
}

func TestWarmCachePropagatesResolveFailure(t *testing.T) {
	lister := &fakeUserLister{users: []string{"u1"}}
	resolver := &fakeResolver{err: errors.New("store down")}
	job := NewWarmCacheJob(lister, resolver, nil, nil, 1)

	require.Error(t, job.Handle(context.Background(), warmTask(t)))
}

func TestWarmCacheRejectsMalformedPayload(t *testing.T) {
	job := NewWarmCacheJob(&fakeUserLister{}, &fakeResolver{}, nil, nil, 1)

	err := job.Handle(context.Background(), asynq.NewTask(TaskWarmEffectiveCache, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
