package mqttjson

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xizhibei/go-httpcalc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// RoutePath maps a request method to the HTTP route path it stands for.
// The empty method and "hello" both name the greeting at /.
func RoutePath(method string) string {
	method = strings.Trim(method, "/")
	if method == "" || method == "hello" {
		return "/"
	}
	return "/" + method
}

// MQTTContext represents the context of an MQTT request.
type MQTTContext struct {
	httpcalc.BaseContext
	req    *request
	query  url.Values
	server *Server
}

// NewMQTTContext creates a context for req. Trace context found in the
// request metadata becomes the parent of the handler span.
func NewMQTTContext(req *request, query url.Values, server *Server) *MQTTContext {
	ctx := context.Background()
	if req.Metadata != nil {
		ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(req.Metadata))
	}

	c := MQTTContext{
		req:    req,
		query:  query,
		server: server,
	}
	c.SetCtx(ctx)
	c.BaseReply = func(res *httpcalc.Response) {
		if res.Error != nil {
			server.publish(req.makeErrResponse(res.Status, res.Error))
			return
		}
		server.publish(req.makeOKResponse(res.Status, res.Result))
	}
	return &c
}

func (c *MQTTContext) ID() string {
	return strconv.FormatUint(c.req.ID, 10)
}

// Method is always GET; the request method selects the path.
func (c *MQTTContext) Method() string {
	return http.MethodGet
}

func (c *MQTTContext) Path() string {
	return RoutePath(c.req.Method)
}

func (c *MQTTContext) Query() url.Values {
	return c.query
}

// ReplyDesc returns the reply topic.
func (c *MQTTContext) ReplyDesc() string {
	return c.req.replyTopic
}

func (c *MQTTContext) PrometheusLabels() prometheus.Labels {
	return prometheus.Labels{
		"method": c.Method(),
		"path":   c.Path(),
	}
}
