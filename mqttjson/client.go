package mqttjson

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/xizhibei/go-httpcalc"
	"github.com/xizhibei/go-httpcalc/compressor"
	"github.com/xizhibei/go-httpcalc/mqttadapter"
	"github.com/xizhibei/go-httpcalc/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// CallError is returned by Client.Call when the server answers with a non-200 status.
type CallError struct {
	Status  int
	Message string
}

func (e *CallError) Error() string {
	return e.Message
}

// Client sends requests to a Server and waits for the reply.
type Client struct {
	mqttClient  mqttadapter.Client
	compressor  *compressor.CompressorManager
	encoding    compressor.ContentEncoding
	log         *zap.SugaredLogger
	telemetry   telemetry.Telemetry
	topicPrefix string
	seq         atomic.Uint64
}

// NewClient creates a Client publishing under topicPrefix. It starts connecting the client in the background.
func NewClient(client mqttadapter.Client, topicPrefix string) *Client {
	tel, _ := telemetry.NewNoop()

	c := Client{
		mqttClient:  client,
		compressor:  compressor.NewCompressorManager(),
		encoding:    compressor.ContentEncodingPlain,
		topicPrefix: topicPrefix,
		telemetry:   tel,
		log:         zap.S().With("module", "httpcalc.mqttjson.client"),
	}

	client.EnsureConnected()

	return &c
}

// SetTelemetry replaces the telemetry used for client spans.
func (c *Client) SetTelemetry(tel telemetry.Telemetry) {
	c.telemetry = tel
}

// SetEncoding compresses request params, and asks for reply data, with enc.
func (c *Client) SetEncoding(enc compressor.ContentEncoding) {
	c.encoding = enc
}

func (c *Client) IsConnected() bool {
	return c.mqttClient.IsConnected()
}

func (c *Client) Close() error {
	c.mqttClient.Disconnect()
	return nil
}

// Call sends method with params and decodes the reply data into result.
// A non-200 reply is returned as *CallError. result may be nil.
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	ctx, span := c.telemetry.StartSpan(ctx, "MQTT "+RoutePath(method), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	res, err := c.roundTrip(ctx, method, params)
	if err != nil {
		return err
	}

	enc, err := compressor.ParseContentEncoding(res.Encoding)
	if err != nil {
		return errors.Wrap(err, "reply encoding")
	}
	if res.Data, err = DecodeData(c.compressor, enc, res.Data); err != nil {
		return err
	}

	if res.Status != httpcalc.StatusOK {
		var data ErrorData
		if err := json.Unmarshal(res.Data, &data); err != nil {
			return errors.Wrapf(err, "decode error reply with status %d", res.Status)
		}
		return &CallError{Status: res.Status, Message: data.Message}
	}

	if result == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal(res.Data, result), "decode reply")
}

func (c *Client) roundTrip(ctx context.Context, method string, params interface{}) (*Response, error) {
	req := Request{
		ID:       c.seq.Inc(),
		Method:   method,
		Metadata: map[string]string{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(req.Metadata))

	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrap(err, "encode params")
		}
		if req.Params, err = EncodeData(c.compressor, c.encoding, raw); err != nil {
			return nil, err
		}
	}
	if c.encoding != compressor.ContentEncodingPlain {
		req.Encoding = c.encoding.String()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encode request")
	}

	id := uuid.NewString()
	responseTopic := ResponseTopic(c.topicPrefix, id)

	replies := make(chan *Response, 1)
	var once sync.Once
	err = c.mqttClient.SubscribeWait(ctx, responseTopic, httpcalc.DefaultQoS, func(_ mqttadapter.Client, m mqttadapter.Message) {
		var res Response
		if err := json.Unmarshal(m.Payload(), &res); err != nil {
			c.log.Warnf("Malformed reply on %s: %v", m.Topic(), err)
			return
		}
		once.Do(func() { replies <- &res })
	})
	defer c.mqttClient.Unsubscribe(context.Background(), responseTopic)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe reply topic")
	}

	c.log.Debugf("Send %s to %s", method, RequestTopic(c.topicPrefix, id))
	c.mqttClient.PublishBytes(ctx, RequestTopic(c.topicPrefix, id), httpcalc.DefaultQoS, false, payload)

	select {
	case res := <-replies:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
