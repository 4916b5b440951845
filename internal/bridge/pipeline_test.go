package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghbridge/internal/eventbus"
	"ghbridge/internal/github"
	"ghbridge/internal/push"
	"ghbridge/internal/state"
	"ghbridge/internal/storage"
	"ghbridge/pkg/logx"
	"ghbridge/pkg/wiretime"
)

type memStore struct {
	mu    sync.Mutex
	st    storage.PersistedState
	saves int
}

func (m *memStore) Load(ctx context.Context) (storage.PersistedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.Endpoint == nil && m.st.LastPollCursor == nil {
		return storage.PersistedState{}, storage.ErrNotFound
	}
	return m.st.Clone(), nil
}

func (m *memStore) Save(ctx context.Context, st storage.PersistedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = st.Clone()
	m.saves++
	return nil
}

func (m *memStore) Close() error { return nil }

type fakeFetcher struct {
	mu     sync.Mutex
	items  []github.Notification
	err    error
	calls  int
	sinces []string
}

func (f *fakeFetcher) Notifications(ctx context.Context, since string) ([]github.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sinces = append(f.sinces, since)
	return f.items, f.err
}

type fakePusher struct {
	mu       sync.Mutex
	events   []push.Event
	failIDs  map[string]bool
	endpoint string
}

func (p *fakePusher) Push(ctx context.Context, endpoint string, ev push.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endpoint = endpoint
	if p.failIDs[ev.ID] {
		return errors.New("distributor down")
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePusher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.ID)
	}
	return out
}

var fixedNow = time.Date(2024, 1, 13, 12, 0, 30, 0, time.UTC)

func note(id string, unread bool, updated string) github.Notification {
	return github.Notification{
		ID:         id,
		Unread:     unread,
		Reason:     "subscribed",
		UpdatedAt:  updated,
		Subject:    github.Subject{Title: "t-" + id, Type: "PullRequest"},
		Repository: github.Repository{FullName: "octo/repo"},
	}
}

func newState(t *testing.T, endpoint, cursor *string) (*state.State, *memStore) {
	t.Helper()
	ms := &memStore{st: storage.PersistedState{Endpoint: endpoint, LastPollCursor: cursor}}
	return state.New(context.Background(), ms, "tok", logx.Nop()), ms
}

func newPipeline(st *state.State, f Fetcher, p Pusher) *Pipeline {
	return New(st, f, p, WithClock(func() time.Time { return fixedNow }))
}

func TestNoEndpointIsNoop(t *testing.T) {
	st, ms := newState(t, nil, nil)
	f := &fakeFetcher{items: []github.Notification{note("a", true, "2024-01-13T12:00:00Z")}}
	p := &fakePusher{}

	res := newPipeline(st, f, p).RunCycle(context.Background())

	assert.True(t, res.Skipped)
	assert.False(t, res.OK())
	assert.Equal(t, 0, f.calls)
	assert.Empty(t, p.ids())
	assert.Equal(t, 0, ms.saves)
}

func TestFirstPollCutoff(t *testing.T) {
	st, _ := newState(t, storage.StringPtr("https://push.example/ep"), nil)
	old := wiretime.Format(fixedNow.Add(-120 * time.Second))
	recent := wiretime.Format(fixedNow.Add(-10 * time.Second))
	f := &fakeFetcher{items: []github.Notification{note("old", true, old), note("new", true, recent)}}
	p := &fakePusher{}

	res := newPipeline(st, f, p).RunCycle(context.Background())

	require.True(t, res.OK())
	assert.True(t, res.FirstPoll)
	assert.Equal(t, []string{"new"}, p.ids())
	assert.Equal(t, 1, res.CutoffSkipped)
	assert.Equal(t, []string{""}, f.sinces)
	cur, ok := st.Cursor()
	require.True(t, ok)
	assert.Equal(t, recent, cur)
}

func TestCutoffSkippedStillAdvancesCursor(t *testing.T) {
	st, _ := newState(t, storage.StringPtr("https://push.example/ep"), nil)
	old := wiretime.Format(fixedNow.Add(-time.Hour))
	f := &fakeFetcher{items: []github.Notification{note("old", true, old)}}
	p := &fakePusher{}

	res := newPipeline(st, f, p).RunCycle(context.Background())

	assert.Empty(t, p.ids())
	assert.Equal(t, 1, res.CutoffSkipped)
	cur, _ := st.Cursor()
	assert.Equal(t, old, cur)
}

func TestNoCutoffAfterFirstPoll(t *testing.T) {
	st, _ := newState(t, storage.StringPtr("https://push.example/ep"), storage.StringPtr("2024-01-01T00:00:00Z"))
	old := wiretime.Format(fixedNow.Add(-time.Hour))
	f := &fakeFetcher{items: []github.Notification{note("old", true, old)}}
	p := &fakePusher{}

	res := newPipeline(st, f, p).RunCycle(context.Background())

	assert.False(t, res.FirstPoll)
	assert.Equal(t, []string{"old"}, p.ids())
	assert.Equal(t, []string{"2024-01-01T00:00:00Z"}, f.sinces)
}

func TestReadNotificationsExcluded(t *testing.T) {
	cursor := "2024-01-10T00:00:00Z"
	st, ms := newState(t, storage.StringPtr("https://push.example/ep"), storage.StringPtr(cursor))
	f := &fakeFetcher{items: []github.Notification{
		note("a", false, "2024-01-13T12:00:00Z"),
		note("b", false, "2024-01-13T12:00:10Z"),
	}}
	p := &fakePusher{}

	res := newPipeline(st, f, p).RunCycle(context.Background())

	assert.Empty(t, p.ids())
	assert.Equal(t, 0, res.Unread)
	assert.Equal(t, 0, ms.saves)
	cur, _ := st.Cursor()
	assert.Equal(t, cursor, cur)
}

func TestEmptyBatchLeavesStateUnchanged(t *testing.T) {
	cursor := "2024-01-10T00:00:00Z"
	st, ms := newState(t, storage.StringPtr("https://push.example/ep"), storage.StringPtr(cursor))
	before := st.Snapshot()

	res := newPipeline(st, &fakeFetcher{}, &fakePusher{}).RunCycle(context.Background())

	assert.True(t, res.OK())
	assert.Equal(t, before, st.Snapshot())
	assert.Equal(t, 0, ms.saves)
}

func TestFetchErrorLeavesStateUnchanged(t *testing.T) {
	cursor := "2024-01-10T00:00:00Z"
	st, ms := newState(t, storage.StringPtr("https://push.example/ep"), storage.StringPtr(cursor))
	f := &fakeFetcher{err: &github.APIError{StatusCode: 401, Message: "Bad credentials"}}
	p := &fakePusher{}

	res := newPipeline(st, f, p).RunCycle(context.Background())

	require.Error(t, res.Err)
	assert.False(t, res.OK())
	assert.Empty(t, p.ids())
	assert.Equal(t, 0, ms.saves)
}

func TestPushFailureDoesNotAbortOrStallCursor(t *testing.T) {
	st, _ := newState(t, storage.StringPtr("https://push.example/ep"), storage.StringPtr("2024-01-01T00:00:00Z"))
	f := &fakeFetcher{items: []github.Notification{
		note("a", true, "2024-01-13T12:00:00Z"),
		note("b", true, "2024-01-13T12:00:05Z"),
		note("c", true, "2024-01-13T11:59:00Z"),
	}}
	p := &fakePusher{failIDs: map[string]bool{"b": true}}

	res := newPipeline(st, f, p).RunCycle(context.Background())

	assert.Equal(t, []string{"a", "c"}, p.ids())
	assert.Equal(t, 2, res.Forwarded)
	assert.Equal(t, 1, res.Failed)
	cur, _ := st.Cursor()
	assert.Equal(t, "2024-01-13T12:00:05Z", cur)
}

func TestCursorNeverDecreases(t *testing.T) {
	st, _ := newState(t, storage.StringPtr("https://push.example/ep"), storage.StringPtr("2024-01-01T00:00:00Z"))
	f := &fakeFetcher{}
	pl := newPipeline(st, f, &fakePusher{})

	batches := [][]string{
		{"2024-01-05T00:00:00Z", "2024-01-03T00:00:00Z"},
		{"2024-01-05T00:00:00Z"},
		{"2024-01-06T00:00:00Z", "2024-01-06T00:00:00Z"},
	}
	prev := "2024-01-01T00:00:00Z"
	for i, b := range batches {
		f.items = nil
		for j, ts := range b {
			f.items = append(f.items, note(string(rune('a'+i*10+j)), true, ts))
		}
		pl.RunCycle(context.Background())
		cur, _ := st.Cursor()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, "2024-01-06T00:00:00Z", prev)
}

func TestOlderBatchKeepsStoredCursor(t *testing.T) {
	st, ms := newState(t, storage.StringPtr("https://push.example/ep"), storage.StringPtr("2024-01-10T00:00:00Z"))
	f := &fakeFetcher{items: []github.Notification{
		note("a", true, "2024-01-05T00:00:00Z"),
		note("b", true, "2024-01-09T23:59:59Z"),
	}}
	p := &fakePusher{}

	res := newPipeline(st, f, p).RunCycle(context.Background())

	assert.Equal(t, 2, res.Forwarded)
	assert.Empty(t, res.Cursor)
	cur, _ := st.Cursor()
	assert.Equal(t, "2024-01-10T00:00:00Z", cur)
	assert.Zero(t, ms.saves)

	newPipeline(st, f, p).RunCycle(context.Background())
	assert.Equal(t, []string{"2024-01-10T00:00:00Z", "2024-01-10T00:00:00Z"}, f.sinces)
}

func TestInvalidTimestampNeverBecomesCursor(t *testing.T) {
	st, _ := newState(t, storage.StringPtr("https://push.example/ep"), storage.StringPtr("2024-01-01T00:00:00Z"))
	f := &fakeFetcher{items: []github.Notification{
		note("good", true, "2024-01-13T12:00:10Z"),
		note("bad", true, "not-a-timestamp"),
	}}
	p := &fakePusher{}
	pl := newPipeline(st, f, p)

	res := pl.RunCycle(context.Background())

	assert.Equal(t, 1, res.InvalidTimestamps)
	assert.Equal(t, []string{"good", "bad"}, p.ids())
	assert.Equal(t, "2024-01-13T12:00:10Z", res.Cursor)
	cur, _ := st.Cursor()
	assert.Equal(t, "2024-01-13T12:00:10Z", cur)

	pl.RunCycle(context.Background())
	require.Len(t, f.sinces, 2)
	assert.Equal(t, "2024-01-13T12:00:10Z", f.sinces[1])
}

func TestInvalidTimestampOnlyBatchLeavesCursor(t *testing.T) {
	st, ms := newState(t, storage.StringPtr("https://push.example/ep"), nil)
	f := &fakeFetcher{items: []github.Notification{note("bad", true, "zzzz")}}
	p := &fakePusher{}

	res := newPipeline(st, f, p).RunCycle(context.Background())

	assert.True(t, res.FirstPoll)
	assert.Equal(t, 1, res.InvalidTimestamps)
	assert.Equal(t, 1, res.CutoffSkipped)
	assert.Empty(t, p.ids())
	_, ok := st.Cursor()
	assert.False(t, ok)
	assert.Zero(t, ms.saves)
}

func TestOffsetTimestampsNormalized(t *testing.T) {
	st, _ := newState(t, storage.StringPtr("https://push.example/ep"), storage.StringPtr("2024-01-01T00:00:00Z"))
	f := &fakeFetcher{items: []github.Notification{
		note("a", true, "2024-01-13T14:00:00+02:00"),
		note("b", true, "2024-01-13T11:30:00Z"),
	}}

	newPipeline(st, f, &fakePusher{}).RunCycle(context.Background())

	cur, _ := st.Cursor()
	assert.Equal(t, "2024-01-13T12:00:00Z", cur)
}

func TestPublishesCycleEvent(t *testing.T) {
	st, _ := newState(t, storage.StringPtr("https://push.example/ep"), storage.StringPtr("2024-01-01T00:00:00Z"))
	bus := eventbus.New()
	sub := bus.Subscribe(1, eventbus.TypePollCycle)
	defer sub.Close()

	pl := New(st, &fakeFetcher{}, &fakePusher{}, WithBus(bus))
	pl.RunCycle(context.Background())

	ev := <-sub.C
	res, ok := ev.Data.(Result)
	require.True(t, ok)
	assert.True(t, res.OK())
}

func TestCyclesAreSerialized(t *testing.T) {
	st, _ := newState(t, storage.StringPtr("https://push.example/ep"), storage.StringPtr("2024-01-01T00:00:00Z"))
	bf := &blockingFetcher{entered: make(chan struct{}, 2), release: make(chan struct{})}
	pl := newPipeline(st, bf, &fakePusher{})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pl.RunCycle(context.Background())
		}()
	}

	<-bf.entered
	select {
	case <-bf.entered:
		t.Fatal("second cycle started while first was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(bf.release)
	wg.Wait()
	assert.Len(t, bf.entered, 1)
}

type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingFetcher) Notifications(ctx context.Context, since string) ([]github.Notification, error) {
	b.entered <- struct{}{}
	<-b.release
	return nil, nil
}

func TestEndToEndRegisterThenPoll(t *testing.T) {
	st, ms := newState(t, nil, nil)
	st.SetEndpoint(context.Background(), "https://push.example/ep1")

	f := &fakeFetcher{items: []github.Notification{note("n1", true, "2024-01-13T12:00:00Z")}}
	p := &fakePusher{}
	pl := newPipeline(st, f, p)

	res := pl.RunCycle(context.Background())

	require.True(t, res.OK())
	assert.Equal(t, []string{"n1"}, p.ids())
	assert.Equal(t, "https://push.example/ep1", p.endpoint)
	cur, ok := st.Cursor()
	require.True(t, ok)
	assert.Equal(t, "2024-01-13T12:00:00Z", cur)
	require.NotNil(t, ms.st.LastPollCursor)
	assert.Equal(t, "2024-01-13T12:00:00Z", *ms.st.LastPollCursor)
}
