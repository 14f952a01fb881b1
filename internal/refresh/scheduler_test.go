package refresh

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingRefresher struct {
	calls atomic.Int64
	err   error
}

func (r *countingRefresher) Refresh(context.Context) error {
	r.calls.Add(1)
	return r.err
}

type switchAuthorizer struct {
	mu      sync.Mutex
	allowed map[string]bool
	asked   []string
}

func (a *switchAuthorizer) IsAuthorized(_ context.Context, identity string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.asked = append(a.asked, identity)
	return a.allowed[identity]
}

func (a *switchAuthorizer) set(identity string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allowed[identity] = ok
}

func staticIdentity(id string) func(context.Context) string {
	return func(context.Context) string { return id }
}

func TestTickFollowsAuthorization(t *testing.T) {
	ctx := context.Background()
	refresher := &countingRefresher{}
	auth := &switchAuthorizer{allowed: map[string]bool{"device-1": true}}

	var outcomes []string
	s := NewScheduler(refresher, auth, staticIdentity("device-1"), time.Hour, func(o string) {
		outcomes = append(outcomes, o)
	})

	assert.Equal(t, OutcomeRefreshed, s.Tick(ctx))
	assert.Equal(t, OutcomeRefreshed, s.Tick(ctx))

	auth.set("device-1", false)
	assert.Equal(t, OutcomeSkipped, s.Tick(ctx))

	auth.set("device-1", true)
	assert.Equal(t, OutcomeRefreshed, s.Tick(ctx))

	assert.Equal(t, int64(3), refresher.calls.Load())
	assert.Equal(t, []string{OutcomeRefreshed, OutcomeRefreshed, OutcomeSkipped, OutcomeRefreshed}, outcomes)
	assert.Len(t, auth.asked, 4)
}

func TestTickSkipsWhenHidden(t *testing.T) {
	refresher := &countingRefresher{}
	auth := &switchAuthorizer{allowed: map[string]bool{"device-1": true}}
	s := NewScheduler(refresher, auth, staticIdentity("device-1"), time.Hour, nil)

	s.SetVisible(false)
	assert.Equal(t, OutcomeSkipped, s.Tick(context.Background()))
	assert.Zero(t, refresher.calls.Load())
}

func TestTickReportsFailure(t *testing.T) {
	refresher := &countingRefresher{err: errors.New("boom")}
	auth := &switchAuthorizer{allowed: map[string]bool{"": true}}
	s := NewScheduler(refresher, auth, nil, time.Hour, nil)

	assert.Equal(t, OutcomeFailed, s.Tick(context.Background()))
}

func TestNilAuthorizerNeverRefreshes(t *testing.T) {
	refresher := &countingRefresher{}
	s := NewScheduler(refresher, nil, nil, time.Hour, nil)

	assert.Equal(t, OutcomeSkipped, s.Tick(context.Background()))
	assert.Zero(t, refresher.calls.Load())
}

func TestLoopTicksUntilStopped(t *testing.T) {
	refresher := &countingRefresher{}
	auth := &switchAuthorizer{allowed: map[string]bool{"device-1": true}}
	s := NewScheduler(refresher, auth, staticIdentity("device-1"), 10*time.Millisecond, nil)

	s.Start()
	require.Eventually(t, func() bool { return refresher.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	after := refresher.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, refresher.calls.Load())
}

func TestStartStopIdempotent(t *testing.T) {
	refresher := &countingRefresher{}
	s := NewScheduler(refresher, &switchAuthorizer{allowed: map[string]bool{}}, nil, time.Hour, nil)

	s.Stop()
	s.Start()
	s.Start()
	assert.True(t, s.Running())
	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
}

func TestSetVisible(t *testing.T) {
	refresher := &countingRefresher{}
	auth := &switchAuthorizer{allowed: map[string]bool{"device-1": false}}
	s := NewScheduler(refresher, auth, staticIdentity("device-1"), time.Hour, nil)

	s.SetVisible(true)
	assert.True(t, s.Running(), "loop runs while unauthorized")
	assert.Equal(t, OutcomeSkipped, s.Tick(context.Background()))

	s.SetVisible(true)
	assert.True(t, s.Running())

	s.SetVisible(false)
	assert.False(t, s.Running())
	assert.False(t, s.Visible())
}

func TestAuthorizationGrantedMidRun(t *testing.T) {
	refresher := &countingRefresher{}
	auth := &switchAuthorizer{allowed: map[string]bool{"device-1": false}}
	s := NewScheduler(refresher, auth, staticIdentity("device-1"), 10*time.Millisecond, nil)
	t.Cleanup(s.Stop)

	s.SetVisible(true)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, refresher.calls.Load())

	auth.set("device-1", true)
	require.Eventually(t, func() bool { return refresher.calls.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestDefaultInterval(t *testing.T) {
	s := NewScheduler(&countingRefresher{}, nil, nil, 0, nil)
	assert.Equal(t, DefaultInterval, s.interval)
}
