// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package actor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/wagate/internal/domain/session/lifecycle"
	"github.com/ManuGH/wagate/internal/domain/session/model"
	"github.com/ManuGH/wagate/internal/infra/protocol/stub"
)

func recv(t *testing.T, ch <-chan model.Event) model.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return model.Event{}
	}
}

func TestActorStampsEventsInOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	client := stub.New("s1", stub.Options{EmitQR: true})
	a := New("s1", client, 8, WithClock(func() time.Time { return fixed }))

	require.NoError(t, a.Connect(context.Background()))
	client.Receive(map[string]string{"text": "hi"})

	qr := recv(t, a.Events())
	assert.Equal(t, model.EventQR, qr.Type)
	assert.Equal(t, "s1", qr.SessionID)
	assert.Equal(t, fixed, qr.Timestamp)

	assert.Equal(t, model.EventConnected, recv(t, a.Events()).Type)
	assert.Equal(t, model.EventMessage, recv(t, a.Events()).Type)

	require.NoError(t, a.Disconnect(context.Background()))
	_, ok := <-a.Events()
	assert.False(t, ok, "events channel must be closed after disconnect")
}

func TestActorConnectFailureIsWrapped(t *testing.T) {
	client := stub.New("s1", stub.Options{FailConnects: 1})
	a := New("s1", client, 1)
	defer func() { _ = a.Disconnect(context.Background()) }()

	err := a.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycle.ErrConnectFailure)
}

func TestActorDisconnectUnblocksFullBuffer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	client := stub.New("s1", stub.Options{})
	a := New("s1", client, 1)

	delivered := make(chan struct{})
	go func() {
		client.Receive("first")
		client.Receive("second") // blocks: buffer of one is full
		close(delivered)
	}()

	// Wait for the first event to be buffered before disconnecting.
	require.Eventually(t, func() bool { return len(a.Events()) == 1 }, time.Second, time.Millisecond)
	require.NoError(t, a.Disconnect(context.Background()))
	require.NoError(t, a.Disconnect(context.Background()), "second disconnect is a no-op")

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("callback stayed blocked after disconnect")
	}
}

func TestActorSendCommandForwardsToClient(t *testing.T) {
	client := stub.New("s1", stub.Options{})
	a := New("s1", client, 4)
	defer func() { _ = a.Disconnect(context.Background()) }()

	require.NoError(t, a.Connect(context.Background()))
	payload, _ := json.Marshal(model.SendMessagePayload{SessionID: "s1", JID: "123@s.whatsapp.net", Content: json.RawMessage(`{"text":"hi"}`)})
	res, err := a.SendCommand(context.Background(), model.Command{Kind: model.CmdSendMessage, SessionID: "s1", Payload: payload})
	require.NoError(t, err)
	assert.NotEmpty(t, res.MessageID)
	assert.Len(t, client.Sent(), 1)
}

func TestFactoryRequiresClientFactory(t *testing.T) {
	_, err := Factory{}.NewActor("s1")
	assert.Error(t, err)

	f := stub.NewFactory(stub.Options{})
	a, err := Factory{NewClient: f.NewClient, EventBuffer: 2}.NewActor("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", a.SessionID())
	_, ok := f.Client("s1")
	assert.True(t, ok)
	require.NoError(t, a.Disconnect(context.Background()))
}
