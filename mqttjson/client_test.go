package mqttjson_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xizhibei/go-httpcalc"
	"github.com/xizhibei/go-httpcalc/calc"
	"github.com/xizhibei/go-httpcalc/compressor"
	"github.com/xizhibei/go-httpcalc/mqttadapter"
	"github.com/xizhibei/go-httpcalc/mqttjson"
)

// loopback delivers publishes to matching subscriptions in process.
// Only the single level "+" wildcard is supported.
type loopback struct {
	mu           sync.Mutex
	subs         map[string]mqttadapter.MessageCallback
	subscribeErr error
	published    int
}

func newLoopback() *loopback {
	return &loopback{subs: map[string]mqttadapter.MessageCallback{}}
}

func topicMatch(filter, topic string) bool {
	f, t := strings.Split(filter, "/"), strings.Split(topic, "/")
	if len(f) != len(t) {
		return false
	}
	for i := range f {
		if f[i] != "+" && f[i] != t[i] {
			return false
		}
	}
	return true
}

func (l *loopback) OnConnect(cb mqttadapter.OnConnectCallback) int { cb(); return 0 }
func (l *loopback) OffConnect(int)                                 {}
func (l *loopback) Connect(context.Context) error                  { return nil }
func (l *loopback) EnsureConnected()                               {}
func (l *loopback) Disconnect()                                    {}
func (l *loopback) IsConnected() bool                              { return true }

func (l *loopback) Subscribe(_ context.Context, topic string, _ byte, onMsg mqttadapter.MessageCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs[topic] = onMsg
}

func (l *loopback) SubscribeWait(ctx context.Context, topic string, qos byte, onMsg mqttadapter.MessageCallback) error {
	if l.subscribeErr != nil {
		return l.subscribeErr
	}
	l.Subscribe(ctx, topic, qos, onMsg)
	return nil
}

func (l *loopback) Unsubscribe(_ context.Context, topic string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.subs, topic)
}

func (l *loopback) PublishBytes(_ context.Context, topic string, _ byte, retained bool, data []byte) {
	l.mu.Lock()
	l.published++
	var targets []mqttadapter.MessageCallback
	for filter, cb := range l.subs {
		if topicMatch(filter, topic) {
			targets = append(targets, cb)
		}
	}
	l.mu.Unlock()

	for _, cb := range targets {
		go cb(l, &message{topic: topic, payload: data, retained: retained})
	}
}

func newLoopbackPair(t *testing.T) *mqttjson.Client {
	client, _ := newLoopbackBroker(t)
	return client
}

func newLoopbackBroker(t *testing.T) (*mqttjson.Client, *loopback) {
	broker := newLoopback()

	server := mqttjson.NewServer(broker, "calc", httpcalc.WithWorkerNum(2))
	calc.Register(server, 0)
	t.Cleanup(func() { _ = server.Close() })

	client := mqttjson.NewClient(broker, "calc")
	t.Cleanup(func() { _ = client.Close() })
	return client, broker
}

func TestClientCall(t *testing.T) {
	client := newLoopbackPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var res calc.MathResult
	require.NoError(t, client.Call(ctx, "add", map[string]interface{}{"a": 5, "b": 3}, &res))
	assert.Equal(t, calc.MathResult{Operation: calc.Addition, A: 5, B: 3, Result: 8}, res)

	require.NoError(t, client.Call(ctx, "subtract", map[string]string{"a": "10", "b": "4"}, &res))
	assert.Equal(t, calc.Number(6), res.Result)

	var greeting string
	require.NoError(t, client.Call(ctx, "hello", nil, &greeting))
	assert.Equal(t, calc.Greeting, greeting)
}

func TestClientCallError(t *testing.T) {
	client := newLoopbackPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := client.Call(ctx, "add", map[string]interface{}{"a": 5}, nil)
	var callErr *mqttjson.CallError
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, httpcalc.StatusClientError, callErr.Status)
	assert.Equal(t, "Parameters 'a' and 'b' are required", callErr.Error())

	err = client.Call(ctx, "multiply", map[string]interface{}{"a": 5, "b": 1}, nil)
	require.True(t, errors.As(err, &callErr))
	assert.Equal(t, httpcalc.StatusNotFound, callErr.Status)
}

func TestClientCallCanceled(t *testing.T) {
	broker := newLoopback()
	client := mqttjson.NewClient(broker, "nobody")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := client.Call(ctx, "add", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientCallEncoded(t *testing.T) {
	for _, enc := range []compressor.ContentEncoding{
		compressor.ContentEncodingGzip,
		compressor.ContentEncodingDeflate,
		compressor.ContentEncodingBrotli,
	} {
		t.Run(enc.String(), func(t *testing.T) {
			client := newLoopbackPair(t)
			client.SetEncoding(enc)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var res calc.MathResult
			require.NoError(t, client.Call(ctx, "subtract", map[string]interface{}{"a": 5, "b": 10}, &res))
			assert.Equal(t, calc.MathResult{Operation: calc.Subtraction, A: 5, B: 10, Result: -5}, res)

			err := client.Call(ctx, "add", map[string]interface{}{"a": "xyz", "b": 1}, nil)
			var callErr *mqttjson.CallError
			require.True(t, errors.As(err, &callErr))
			assert.Equal(t, "Parameters must be valid numbers", callErr.Message)
		})
	}
}

func TestClientCallSubscribeFailed(t *testing.T) {
	client, broker := newLoopbackBroker(t)
	broker.subscribeErr = errors.New("not authorized")

	err := client.Call(context.Background(), "add", map[string]interface{}{"a": 1, "b": 2}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")

	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.Zero(t, broker.published)
}
