package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroker struct {
	NopBroker
	channel string
	msgs    []interface{}
}

func (r *recordingBroker) Publish(_ context.Context, channel string, msg interface{}) error {
	r.channel = channel
	r.msgs = append(r.msgs, msg)
	return nil
}

func TestOutcomePublisher_WrapsPayload(t *testing.T) {
	rb := &recordingBroker{}
	p := NewOutcomePublisher(rb, "reminders.outcomes")

	require.NoError(t, p.PublishOutcome(context.Background(), map[string]string{"status": "sent"}))
	assert.Equal(t, "reminders.outcomes", rb.channel)
	require.Len(t, rb.msgs, 1)

	msg := rb.msgs[0].(Message)
	assert.Equal(t, OutcomeMessageType, msg.Type)
}

func TestNopBroker_SubscribeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NopBroker{}.Subscribe(ctx, "x")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestDecodeMessage_RoundTripsPayload(t *testing.T) {
	raw, err := json.Marshal(Message{Type: OutcomeMessageType, Payload: map[string]string{"status": "sent"}})
	require.NoError(t, err)

	var payload struct {
		Status string `json:"status"`
	}
	typ, err := DecodeMessage(raw, &payload)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMessageType, typ)
	assert.Equal(t, "sent", payload.Status)

	_, err = DecodeMessage([]byte("not json"), &payload)
	assert.Error(t, err)
}
