package tmux

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vaughanknight/trex-sub003/internal/infrastructure/monitoring"
)

type mockQuerier struct {
	mock.Mock
}

func (m *mockQuerier) Available() bool {
	return m.Called().Bool(0)
}

func (m *mockQuerier) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]SessionRecord)
	return records, args.Error(1)
}

func (m *mockQuerier) ListClients(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	clients, _ := args.Get(0).(map[string]string)
	return clients, args.Error(1)
}

type sessionEvents struct {
	mu     sync.Mutex
	lists  [][]SessionRecord
	deltas []SessionsDelta
}

func (e *sessionEvents) record(records []SessionRecord, delta SessionsDelta) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lists = append(e.lists, records)
	e.deltas = append(e.deltas, delta)
}

func (e *sessionEvents) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.lists)
}

func testMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ClientInterval:   10 * time.Millisecond,
		SessionInterval:  20 * time.Millisecond,
		FailureThreshold: 3,
		MaxBackoff:       100 * time.Millisecond,
	}
}

func newAvailableQuerier() *mockQuerier {
	q := &mockQuerier{}
	q.On("Available").Return(true)
	return q
}

var errQuery = errors.New("tmux timed out")

func TestMonitorDisabledWhenUnavailable(t *testing.T) {
	q := &mockQuerier{}
	q.On("Available").Return(false)

	m := NewMonitor(q, testMonitorConfig(), zaptest.NewLogger(t), nil)
	assert.Equal(t, StateDisabled, m.State())
	assert.False(t, m.Snapshot().Available)

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled monitor must return immediately")
	}
	q.AssertNotCalled(t, "ListSessions", mock.Anything)
}

func TestMonitorDisabledByConfig(t *testing.T) {
	q := newAvailableQuerier()
	cfg := testMonitorConfig()
	cfg.Disabled = true

	m := NewMonitor(q, cfg, zaptest.NewLogger(t), nil)
	assert.Equal(t, StateDisabled, m.State())
}

func TestSessionChangesAreReported(t *testing.T) {
	q := newAvailableQuerier()
	work := SessionRecord{Name: "work", Windows: 1, Attached: 0}
	q.On("ListSessions", mock.Anything).Return([]SessionRecord{work}, nil).Once()
	q.On("ListSessions", mock.Anything).Return([]SessionRecord{work}, nil).Once()
	q.On("ListSessions", mock.Anything).Return([]SessionRecord{{Name: "work", Windows: 2}, {Name: "dev", Windows: 1}}, nil).Once()
	q.On("ListSessions", mock.Anything).Return([]SessionRecord{{Name: "dev", Windows: 1}}, nil).Once()

	m := NewMonitor(q, testMonitorConfig(), zaptest.NewLogger(t), monitoring.NewMetrics())
	events := &sessionEvents{}
	m.OnSessions(events.record)
	ctx := context.Background()

	m.pollSessions(ctx)
	assert.Equal(t, 1, events.count())
	assert.Equal(t, []string{"work"}, events.deltas[0].Added)

	m.pollSessions(ctx)
	assert.Equal(t, 1, events.count(), "an unchanged list must not be reported")

	m.pollSessions(ctx)
	require.Equal(t, 2, events.count())
	assert.Equal(t, []string{"dev"}, events.deltas[1].Added)
	assert.Equal(t, []string{"work"}, events.deltas[1].Changed)

	m.pollSessions(ctx)
	require.Equal(t, 3, events.count())
	assert.Equal(t, []string{"work"}, events.deltas[2].Removed)
	assert.Equal(t, []SessionRecord{{Name: "dev", Windows: 1}}, m.Snapshot().Sessions)
}

func TestFailedPollReusesCache(t *testing.T) {
	q := newAvailableQuerier()
	cached := []SessionRecord{{Name: "work", Windows: 1}}
	q.On("ListSessions", mock.Anything).Return(cached, nil).Once()
	q.On("ListSessions", mock.Anything).Return(nil, errQuery).Once()
	q.On("ListSessions", mock.Anything).Return(cached, nil).Once()

	m := NewMonitor(q, testMonitorConfig(), zaptest.NewLogger(t), nil)
	events := &sessionEvents{}
	m.OnSessions(events.record)
	ctx := context.Background()

	assert.Equal(t, cached, m.pollSessions(ctx))
	assert.Equal(t, cached, m.pollSessions(ctx), "failed cycle must reproduce the previous result")
	assert.Equal(t, cached, m.Snapshot().Sessions)
	assert.Equal(t, cached, m.pollSessions(ctx))

	assert.Equal(t, 1, events.count(), "neither the failure nor the recovery is a change")
	q.AssertExpectations(t)
}

func TestBackoffAfterConsecutiveFailures(t *testing.T) {
	q := newAvailableQuerier()
	q.On("ListClients", mock.Anything).Return(nil, errQuery).Times(5)
	q.On("ListClients", mock.Anything).Return(map[string]string{}, nil).Once()

	cfg := testMonitorConfig()
	m := NewMonitor(q, cfg, zaptest.NewLogger(t), monitoring.NewMetrics())
	ctx := context.Background()

	m.pollClients(ctx)
	m.pollClients(ctx)
	assert.Equal(t, cfg.ClientInterval, m.Interval("clients"), "two failures must not back off")

	m.pollClients(ctx)
	assert.Equal(t, 2*cfg.ClientInterval, m.Interval("clients"))

	m.pollClients(ctx)
	assert.Equal(t, 4*cfg.ClientInterval, m.Interval("clients"))

	m.pollClients(ctx)
	assert.Equal(t, 8*cfg.ClientInterval, m.Interval("clients"))

	m.pollClients(ctx)
	assert.Equal(t, cfg.ClientInterval, m.Interval("clients"), "success resets the interval")
	assert.Equal(t, cfg.SessionInterval, m.Interval("sessions"), "queries back off independently")
}

func TestBackoffIsCapped(t *testing.T) {
	q := newAvailableQuerier()
	q.On("ListSessions", mock.Anything).Return(nil, errQuery)

	cfg := testMonitorConfig()
	m := NewMonitor(q, cfg, zaptest.NewLogger(t), nil)
	for i := 0; i < 20; i++ {
		m.pollSessions(context.Background())
	}
	assert.Equal(t, cfg.MaxBackoff, m.Interval("sessions"))
}

func TestClientChangesAreReported(t *testing.T) {
	q := newAvailableQuerier()
	q.On("ListClients", mock.Anything).Return(map[string]string{"/dev/pts/1": "work"}, nil).Twice()
	q.On("ListClients", mock.Anything).Return(map[string]string{}, nil).Once()

	m := NewMonitor(q, testMonitorConfig(), zaptest.NewLogger(t), nil)
	var seen []map[string]string
	m.OnClients(func(c map[string]string) { seen = append(seen, c) })
	ctx := context.Background()

	m.pollClients(ctx)
	m.pollClients(ctx)
	m.pollClients(ctx)

	require.Len(t, seen, 2)
	assert.Equal(t, "work", seen[0]["/dev/pts/1"])
	assert.Empty(t, seen[1])
}

func TestRunPollsUntilCancelled(t *testing.T) {
	q := newAvailableQuerier()
	var sessionPolls atomic.Int32
	q.On("ListSessions", mock.Anything).
		Run(func(mock.Arguments) { sessionPolls.Add(1) }).
		Return([]SessionRecord{{Name: "work", Windows: 1}}, nil)
	q.On("ListClients", mock.Anything).Return(map[string]string{"/dev/pts/4": "work"}, nil)

	m := NewMonitor(q, testMonitorConfig(), zaptest.NewLogger(t), nil)
	clients := make(chan map[string]string, 1)
	m.OnClients(func(c map[string]string) {
		select {
		case clients <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case c := <-clients:
		assert.Equal(t, "work", c["/dev/pts/4"])
	case <-time.After(time.Second):
		t.Fatal("no client poll")
	}

	assert.Eventually(t, func() bool { return sessionPolls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.Equal(t, StateIdle, m.State())
	assert.True(t, m.Snapshot().Available)
}

func TestDiffSessions(t *testing.T) {
	prev := []SessionRecord{{Name: "a", Windows: 1}, {Name: "b", Windows: 1}}
	next := []SessionRecord{{Name: "b", Windows: 1, Attached: 1}, {Name: "c", Windows: 2}}

	delta := diffSessions(prev, next)
	assert.Equal(t, []string{"c"}, delta.Added)
	assert.Equal(t, []string{"b"}, delta.Changed)
	assert.Equal(t, []string{"a"}, delta.Removed)
	assert.True(t, diffSessions(next, next).Empty())
}
