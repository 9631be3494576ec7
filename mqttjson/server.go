// Package mqttjson exposes the registered routes over MQTT with JSON envelopes.
//
// A request published on <prefix>/request/<id> is answered on
// <prefix>/response/<id> with the status the HTTP surface would give.
package mqttjson

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xizhibei/go-httpcalc"
	"github.com/xizhibei/go-httpcalc/compressor"
	"github.com/xizhibei/go-httpcalc/mqttadapter"
	"go.uber.org/zap"
)

var (
	// ErrRetainedMessage is an error indicating that retained requests are not served.
	ErrRetainedMessage = errors.New("[HTTPCALC] retained message is not allowed, please set retained=false")

	// ErrMalformedRequest is an error indicating the payload is not a JSON request envelope.
	ErrMalformedRequest = errors.New("[HTTPCALC] malformed request")
)

// Server serves registered handlers over MQTT.
type Server struct {
	*httpcalc.Server
	client     mqttadapter.Client
	compressor *compressor.CompressorManager
	log        *zap.SugaredLogger

	topicPrefix string
	qos         byte
}

// NewServer creates a Server that subscribes to <topicPrefix>/request/+ on every connect.
// It starts connecting the client in the background.
func NewServer(client mqttadapter.Client, topicPrefix string, options ...httpcalc.ServerOption) *Server {
	s := Server{
		Server:      httpcalc.NewServer(options...),
		client:      client,
		compressor:  compressor.NewCompressorManager(),
		topicPrefix: strings.TrimSuffix(topicPrefix, "/"),
		qos:         httpcalc.DefaultQoS,
		log:         zap.S().With("module", "httpcalc.mqttjson"),
	}

	client.EnsureConnected()

	client.OnConnect(func() {
		s.initReceive()
	})
	return &s
}

// RequestTopic returns the topic a request with the given id is published on.
func RequestTopic(prefix, id string) string {
	return strings.TrimSuffix(prefix, "/") + "/request/" + id
}

// ResponseTopic returns the topic the reply to id is published on.
func ResponseTopic(prefix, id string) string {
	return strings.TrimSuffix(prefix, "/") + "/response/" + id
}

func (s *Server) subscribeTopic() string {
	return RequestTopic(s.topicPrefix, "+")
}

// Close unsubscribes, disconnects the client and stops the worker pool.
func (s *Server) Close() error {
	s.client.Unsubscribe(context.Background(), s.subscribeTopic())
	s.client.Disconnect()
	return s.Server.Close()
}

// IsConnected returns a boolean value indicating whether the service is connected to the MQTT broker.
func (s *Server) IsConnected() bool {
	return s.client.IsConnected()
}

type request struct {
	Request
	replyTopic string
	encoding   compressor.ContentEncoding
	compressor *compressor.CompressorManager
}

func (r *request) newResponse(status int) *response {
	return &response{
		Topic: r.replyTopic,
		Response: Response{
			ID:     r.ID,
			Method: r.Method,
			Status: status,
		},
	}
}

func (r *request) makeOKResponse(status int, x interface{}) *response {
	if text, ok := x.(httpcalc.Text); ok {
		x = string(text)
	}
	data, err := json.Marshal(x)
	if err != nil {
		return r.makeErrResponse(httpcalc.StatusServerError, errors.Wrap(err, "encode result"))
	}
	return r.withData(r.newResponse(status), data)
}

func (r *request) makeErrResponse(status int, err error) *response {
	data, _ := json.Marshal(ErrorData{Message: err.Error()})
	return r.withData(r.newResponse(status), data)
}

// withData sets the reply data in the request encoding. Data that fails to compress is sent plain.
func (r *request) withData(res *response, data []byte) *response {
	res.Data = data
	if r.compressor == nil || r.encoding == compressor.ContentEncodingPlain {
		return res
	}

	encoded, err := EncodeData(r.compressor, r.encoding, data)
	if err != nil {
		zap.S().Warnw("Compress reply failed, sending plain", "module", "httpcalc.mqttjson", "topic", r.replyTopic, "error", err)
		return res
	}
	res.Data = encoded
	res.Encoding = r.encoding.String()
	return res
}

type response struct {
	Topic string
	Response
}

func (s *Server) publish(res *response) {
	data, err := json.Marshal(res.Response)
	if err != nil {
		s.log.Errorf("Encode response for %s: %v", res.Topic, err)
		return
	}
	s.log.Debugf("Response to topic %s, method %s size %d", res.Topic, res.Method, len(data))
	s.client.PublishBytes(context.Background(), res.Topic, s.qos, false, data)
}

func (s *Server) initReceive() {
	s.client.Subscribe(context.Background(), s.subscribeTopic(), s.qos, func(_ mqttadapter.Client, m mqttadapter.Message) {
		s.handle(m)
	})
}

func (s *Server) handle(m mqttadapter.Message) {
	id := strings.TrimPrefix(m.Topic(), s.topicPrefix+"/request/")
	req := request{
		replyTopic: ResponseTopic(s.topicPrefix, id),
		encoding:   compressor.ContentEncodingPlain,
		compressor: s.compressor,
	}

	if m.Retained() {
		s.log.Warnf("Retained message on %s, ignore", m.Topic())
		s.publish(req.makeErrResponse(httpcalc.StatusClientError, ErrRetainedMessage))
		return
	}

	if err := json.Unmarshal(m.Payload(), &req.Request); err != nil {
		s.log.Warnf("Parse request on %s: %v", m.Topic(), err)
		s.publish(req.makeErrResponse(httpcalc.StatusClientError, ErrMalformedRequest))
		return
	}

	enc, err := compressor.ParseContentEncoding(req.Encoding)
	if err != nil {
		s.log.Warnf("Unknown encoding on %s: %v", m.Topic(), err)
		s.publish(req.makeErrResponse(httpcalc.StatusClientError, ErrInvalidEncoding))
		return
	}
	req.encoding = enc

	if req.Params, err = DecodeData(s.compressor, enc, req.Params); err != nil {
		s.log.Warnf("Decode params on %s: %v", m.Topic(), err)
		s.publish(req.makeErrResponse(httpcalc.StatusClientError, ErrInvalidEncoding))
		return
	}

	query, err := req.Query()
	if err != nil {
		s.log.Warnf("Parse params on %s: %v", m.Topic(), err)
		s.publish(req.makeErrResponse(httpcalc.StatusClientError, ErrInvalidParams))
		return
	}

	s.log.Debugf("Request from topic %s, method %s", m.Topic(), req.Method)

	s.Server.Call(NewMQTTContext(&req, query, s))
}
