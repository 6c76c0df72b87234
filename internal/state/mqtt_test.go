package state

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	messages []published
	err      error
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.messages = append(f.messages, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return &fakeToken{err: f.err}
}

func TestMQTTStore_Publishes(t *testing.T) {
	ctx := context.Background()
	client := &fakeMQTT{}
	store := newMQTTStore(client, MQTTConfig{TopicPrefix: "iolink/al1370/"}, zaptest.NewLogger(t))

	require.NoError(t, store.DeclareObject(ctx, NumberMeta("pressure", "Pressure", "bar")))
	require.NoError(t, store.SetState(ctx, "pressure", 4.0, true))
	require.NoError(t, store.SetState(ctx, "Sensors.Port1", "AH002", true))

	require.Len(t, client.messages, 3)
	assert.Equal(t, "iolink/al1370/pressure/meta", client.messages[0].topic)
	assert.True(t, client.messages[0].retained)

	assert.Equal(t, "iolink/al1370/pressure", client.messages[1].topic)
	var st State
	require.NoError(t, json.Unmarshal(client.messages[1].payload, &st))
	assert.Equal(t, 4.0, st.Value)
	assert.True(t, st.Ack)

	assert.Equal(t, "iolink/al1370/Sensors/Port1", client.messages[2].topic)

	cached, err := store.GetState(ctx, "pressure")
	require.NoError(t, err)
	assert.Equal(t, 4.0, cached.Value)
}

func TestMQTTStore_PublishError(t *testing.T) {
	client := &fakeMQTT{err: errors.New("not connected")}
	store := newMQTTStore(client, MQTTConfig{}, zaptest.NewLogger(t))

	err := store.SetState(context.Background(), "flow", 1.0, true)
	assert.Error(t, err)

	cached, _ := store.GetState(context.Background(), "flow")
	assert.Nil(t, cached)
	assert.Equal(t, "flow", store.Topic("flow"))
}
