// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/wagate/internal/domain/session/actor"
	"github.com/ManuGH/wagate/internal/domain/session/lifecycle"
	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/domain/session/ports"
	"github.com/ManuGH/wagate/internal/domain/session/store"
	"github.com/ManuGH/wagate/internal/infra/protocol/stub"
)

const waitFor = 3 * time.Second

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) forSession(id string) []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.Event
	for _, ev := range p.events {
		if ev.SessionID == id {
			out = append(out, ev)
		}
	}
	return out
}

func (p *recordingPublisher) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *recordingPublisher) count(id string, typ model.EventType) int {
	n := 0
	for _, ev := range p.forSession(id) {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type harness struct {
	orch    *Orchestrator
	clients *stub.Factory
	pub     *recordingPublisher
	store   *store.MemoryStore
}

func fastPolicy(maxAttempts uint) ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		MaxDelay:    5 * time.Millisecond,
		Jitter:      0,
		MaxAttempts: maxAttempts,
	}
}

func newHarness(t *testing.T, opts stub.Options, policy ReconnectPolicy) *harness {
	t.Helper()
	h := &harness{
		clients: stub.NewFactory(opts),
		pub:     &recordingPublisher{},
		store:   store.NewMemoryStore(),
	}
	orch, err := New(Config{
		Actors:    actor.Factory{NewClient: h.clients.NewClient, EventBuffer: 16},
		Publisher: h.pub,
		Store:     h.store,
		Policy:    policy,
	})
	require.NoError(t, err)
	h.orch = orch
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = orch.Shutdown(ctx)
	})
	return h
}

func (h *harness) waitState(t *testing.T, id string, want model.SessionState) model.SessionInfo {
	t.Helper()
	var last model.SessionInfo
	require.Eventually(t, func() bool {
		info, ok := h.orch.Session(id)
		last = info
		return ok && info.State == want
	}, waitFor, time.Millisecond, "session %s never reached %s (last %s)", id, want, last.State)
	return last
}

func (h *harness) client(t *testing.T, id string) *stub.Client {
	t.Helper()
	c, ok := h.clients.Client(id)
	require.True(t, ok, "no client for %s", id)
	return c
}

func sendCmd(id string) model.Command {
	payload, _ := json.Marshal(model.SendMessagePayload{
		SessionID: id,
		JID:       "15550001111@s.whatsapp.net",
		Content:   json.RawMessage(`{"text":"hello"}`),
	})
	return model.Command{Kind: model.CmdSendMessage, SessionID: id, Payload: payload}
}

func TestNewRequiresActorFactory(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{
		Actors: ports.ActorFactoryFunc(func(string) (ports.Actor, error) { return nil, nil }),
		Policy: ReconnectPolicy{BaseDelay: time.Second, Multiplier: 0.5, MaxDelay: time.Second},
	})
	assert.Error(t, err)
}

func TestStartSessionIsIdempotent(t *testing.T) {
	h := newHarness(t, stub.Options{}, fastPolicy(3))
	ctx := context.Background()

	require.NoError(t, h.orch.StartSession(ctx, "s1"))
	require.NoError(t, h.orch.StartSession(ctx, "s1"))
	h.waitState(t, "s1", model.SessionConnected)
	require.NoError(t, h.orch.StartSession(ctx, "s1"))

	assert.Equal(t, 1, h.client(t, "s1").Connects())
	assert.Len(t, h.orch.Sessions(), 1)
	assert.Equal(t, 1, h.pub.count("s1", model.EventConnected))
}

func TestStartSessionRejectsInvalidID(t *testing.T) {
	h := newHarness(t, stub.Options{}, fastPolicy(3))
	for _, id := range []string{"", "../x", "a b"} {
		err := h.orch.StartSession(context.Background(), id)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidSessionID, "id=%q", id)
	}
	assert.Empty(t, h.orch.Sessions())
}

func TestStopUnknownSessionIsNoop(t *testing.T) {
	h := newHarness(t, stub.Options{}, fastPolicy(3))
	require.NoError(t, h.orch.StopSession(context.Background(), "nope"))
}

func TestDispatchErrors(t *testing.T) {
	h := newHarness(t, stub.Options{ConnectDelay: time.Hour}, fastPolicy(3))
	ctx := context.Background()

	_, err := h.orch.Dispatch(ctx, "ghost", sendCmd("ghost"))
	assert.ErrorIs(t, err, lifecycle.ErrSessionNotFound)

	require.NoError(t, h.orch.StartSession(ctx, "slow"))
	_, err = h.orch.Dispatch(ctx, "slow", sendCmd("slow"))
	require.ErrorIs(t, err, lifecycle.ErrSessionNotReady)
	state, ok := lifecycle.StateOf(err)
	require.True(t, ok)
	assert.Equal(t, model.SessionStarting, state)
}

func TestDispatchWhileReconnectingIsNotReady(t *testing.T) {
	h := newHarness(t, stub.Options{}, ReconnectPolicy{
		BaseDelay:   time.Hour,
		Multiplier:  2,
		MaxDelay:    time.Hour,
		MaxAttempts: 5,
	})
	ctx := context.Background()
	require.NoError(t, h.orch.StartSession(ctx, "s1"))
	h.waitState(t, "s1", model.SessionConnected)

	h.client(t, "s1").Drop("stream replaced", false)
	h.waitState(t, "s1", model.SessionReconnecting)

	_, err := h.orch.Dispatch(ctx, "s1", sendCmd("s1"))
	require.ErrorIs(t, err, lifecycle.ErrSessionNotReady)
	state, ok := lifecycle.StateOf(err)
	require.True(t, ok)
	assert.Equal(t, model.SessionReconnecting, state)
	assert.Empty(t, h.client(t, "s1").Sent())
}

func TestDispatchForwardsToConnectedActor(t *testing.T) {
	h := newHarness(t, stub.Options{}, fastPolicy(3))
	ctx := context.Background()

	require.NoError(t, h.orch.StartSession(ctx, "s1"))
	h.waitState(t, "s1", model.SessionConnected)

	res, err := h.orch.Dispatch(ctx, "s1", sendCmd("s1"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)

	_, err = h.orch.Dispatch(ctx, "s1", model.Command{Kind: model.CmdSendMessage, Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, lifecycle.ErrBadPayload, "actor errors are returned unchanged")
}

func TestEventsKeepEmissionOrder(t *testing.T) {
	h := newHarness(t, stub.Options{EmitQR: true}, fastPolicy(3))
	require.NoError(t, h.orch.StartSession(context.Background(), "s1"))
	h.waitState(t, "s1", model.SessionConnected)

	const n = 200
	c := h.client(t, "s1")
	for i := 0; i < n; i++ {
		c.Receive(i)
	}
	require.Eventually(t, func() bool {
		return h.pub.count("s1", model.EventMessage) == n
	}, waitFor, time.Millisecond)

	events := h.pub.forSession("s1")
	assert.Equal(t, model.EventQR, events[0].Type)
	assert.Equal(t, model.EventConnected, events[1].Type)
	next := 0
	for _, ev := range events {
		if ev.Type != model.EventMessage {
			continue
		}
		assert.Equal(t, next, ev.Data)
		next++
	}
}

func TestReconnectExhaustionEmitsSingleError(t *testing.T) {
	h := newHarness(t, stub.Options{FailConnects: 1000}, fastPolicy(3))
	require.NoError(t, h.orch.StartSession(context.Background(), "s1"))

	info := h.waitState(t, "s1", model.SessionFailed)
	require.NotNil(t, info.LastError)
	assert.Equal(t, "connect_failure", info.LastError.Code)
	assert.EqualValues(t, 2, info.ReconnectAttempts)

	// Give stray timers a chance to misbehave before counting.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 3, h.client(t, "s1").Connects(), "initial connect plus two reconnects")
	assert.Equal(t, 1, h.pub.count("s1", model.EventError))

	errs := h.pub.forSession("s1")
	last := errs[len(errs)-1]
	require.Equal(t, model.EventError, last.Type)
	data, ok := last.Data.(model.ErrorEventData)
	require.True(t, ok)
	assert.EqualValues(t, 2, data.Attempts)

	_, err := h.orch.GetSession("s1")
	state, _ := lifecycle.StateOf(err)
	assert.Equal(t, model.SessionFailed, state)

	persisted, err := h.store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, model.SessionFailed, persisted.State)
}

func TestSingleAttemptPolicyFailsOnFirstConnectError(t *testing.T) {
	h := newHarness(t, stub.Options{FailConnects: 1000}, fastPolicy(1))
	require.NoError(t, h.orch.StartSession(context.Background(), "s1"))

	info := h.waitState(t, "s1", model.SessionFailed)
	assert.Zero(t, info.ReconnectAttempts)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, h.client(t, "s1").Connects())
	assert.Equal(t, 1, h.pub.count("s1", model.EventError))
}

func TestReconnectAfterDropRecovers(t *testing.T) {
	h := newHarness(t, stub.Options{}, fastPolicy(3))
	require.NoError(t, h.orch.StartSession(context.Background(), "s1"))
	h.waitState(t, "s1", model.SessionConnected)

	h.client(t, "s1").Drop("stream replaced", false)

	require.Eventually(t, func() bool {
		return h.pub.count("s1", model.EventConnected) == 2
	}, waitFor, time.Millisecond)
	info := h.waitState(t, "s1", model.SessionConnected)
	assert.Zero(t, info.ReconnectAttempts)
	assert.Nil(t, info.LastError)
	assert.Equal(t, 1, h.pub.count("s1", model.EventDisconnected))
	assert.Zero(t, h.pub.count("s1", model.EventError))
}

func TestLoggedOutDisconnectFailsImmediately(t *testing.T) {
	h := newHarness(t, stub.Options{}, fastPolicy(5))
	require.NoError(t, h.orch.StartSession(context.Background(), "s1"))
	h.waitState(t, "s1", model.SessionConnected)

	h.client(t, "s1").Drop("logged out", true)

	info := h.waitState(t, "s1", model.SessionFailed)
	assert.Zero(t, info.ReconnectAttempts)
	require.Eventually(t, func() bool {
		return h.pub.count("s1", model.EventError) == 1
	}, waitFor, time.Millisecond)
	assert.Equal(t, 1, h.client(t, "s1").Connects())
}

func TestRestartFromFailedClearsAttempts(t *testing.T) {
	h := newHarness(t, stub.Options{FailConnects: 2}, fastPolicy(0))
	ctx := context.Background()

	require.NoError(t, h.orch.StartSession(ctx, "s1"))
	h.waitState(t, "s1", model.SessionFailed)

	// Each start builds a new client, so failures start over.
	h.clients.Options = stub.Options{}
	require.NoError(t, h.orch.StartSession(ctx, "s1"))
	info := h.waitState(t, "s1", model.SessionConnected)
	assert.Zero(t, info.ReconnectAttempts)
	assert.Nil(t, info.LastError)
}

func TestStopCancelsPendingReconnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, stub.Options{FailConnects: 1000}, ReconnectPolicy{
		BaseDelay:   time.Hour,
		Multiplier:  2,
		MaxDelay:    time.Hour,
		MaxAttempts: 5,
	})
	ctx := context.Background()
	require.NoError(t, h.orch.StartSession(ctx, "s1"))
	h.waitState(t, "s1", model.SessionReconnecting)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, h.orch.StopSession(stopCtx, "s1"))

	_, ok := h.orch.Session("s1")
	assert.False(t, ok, "stopped session must be removed")
	_, err := h.store.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, h.client(t, "s1").Connects())

	require.NoError(t, h.orch.Shutdown(stopCtx))
}

func TestConcurrentStopsWaitForEachOther(t *testing.T) {
	h := newHarness(t, stub.Options{}, fastPolicy(3))
	ctx := context.Background()
	require.NoError(t, h.orch.StartSession(ctx, "s1"))
	h.waitState(t, "s1", model.SessionConnected)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.orch.StopSession(ctx, "s1")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	_, ok := h.orch.Session("s1")
	assert.False(t, ok)
}

func TestShutdownDrainsAllSessions(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, stub.Options{}, fastPolicy(3))
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, h.orch.StartSession(ctx, fmt.Sprintf("s%d", i)))
	}
	for i := 0; i < 10; i++ {
		h.waitState(t, fmt.Sprintf("s%d", i), model.SessionConnected)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	require.NoError(t, h.orch.Shutdown(shutdownCtx))

	assert.Empty(t, h.orch.Sessions())
	assert.Zero(t, h.orch.tasks.Running())
	assert.ErrorIs(t, h.orch.StartSession(ctx, "late"), lifecycle.ErrShuttingDown)

	_, err := h.orch.Dispatch(ctx, "s1", sendCmd("s1"))
	assert.ErrorIs(t, err, lifecycle.ErrSessionNotFound)
}

func TestShutdownDuringReconnectStopsEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t, stub.Options{FailConnects: 1000}, ReconnectPolicy{
		BaseDelay:   5 * time.Millisecond,
		Multiplier:  1,
		MaxDelay:    5 * time.Millisecond,
		MaxAttempts: 1000,
	})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, h.orch.StartSession(ctx, fmt.Sprintf("s%d", i)))
	}
	for i := 0; i < 5; i++ {
		h.waitState(t, fmt.Sprintf("s%d", i), model.SessionReconnecting)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	require.NoError(t, h.orch.Shutdown(shutdownCtx))

	published := h.pub.total()
	connects := make([]int, 5)
	for i := range connects {
		connects[i] = h.client(t, fmt.Sprintf("s%d", i)).Connects()
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, published, h.pub.total(), "no events after shutdown")
	for i, n := range connects {
		assert.Equal(t, n, h.client(t, fmt.Sprintf("s%d", i)).Connects(), "no reconnects after shutdown")
	}
	assert.Empty(t, h.orch.Sessions())
	assert.Zero(t, h.orch.tasks.Running())
}

func TestStartAfterTasksClosedMarksFailed(t *testing.T) {
	h := newHarness(t, stub.Options{}, fastPolicy(3))
	ctx := context.Background()

	closeCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	require.NoError(t, h.orch.tasks.CloseAndWait(closeCtx))

	err := h.orch.StartSession(ctx, "s1")
	assert.ErrorIs(t, err, lifecycle.ErrShuttingDown)

	info, ok := h.orch.Session("s1")
	require.True(t, ok)
	assert.Equal(t, model.SessionFailed, info.State)
	require.NotNil(t, info.LastError)
	assert.Zero(t, h.client(t, "s1").Connects())
	assert.Zero(t, h.orch.tasks.Running())

	_, err = h.orch.Dispatch(ctx, "s1", sendCmd("s1"))
	state, _ := lifecycle.StateOf(err)
	assert.Equal(t, model.SessionFailed, state)
}

func TestRestoreReregistersPersistedSessions(t *testing.T) {
	h := newHarness(t, stub.Options{}, fastPolicy(3))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, h.store.PutSession(ctx, model.SessionInfo{
		SessionID: "alive", State: model.SessionConnected, CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, h.store.PutSession(ctx, model.SessionInfo{
		SessionID: "broken", State: model.SessionFailed, ReconnectAttempts: 5,
		LastError: &model.ErrorInfo{Code: "connect_failure", Message: "refused", At: now},
		CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, h.orch.Restore(ctx))

	h.waitState(t, "alive", model.SessionConnected)
	broken, ok := h.orch.Session("broken")
	require.True(t, ok)
	assert.Equal(t, model.SessionFailed, broken.State)
	assert.Equal(t, "refused", broken.LastError.Message)
}

func TestSetPolicyValidates(t *testing.T) {
	h := newHarness(t, stub.Options{}, fastPolicy(3))
	assert.Error(t, h.orch.SetPolicy(ReconnectPolicy{}))

	p := fastPolicy(9)
	require.NoError(t, h.orch.SetPolicy(p))
	assert.Equal(t, p, h.orch.Policy())
}
