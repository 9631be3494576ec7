package ginhttp

import (
	"net/url"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xizhibei/go-httpcalc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// ProtoMessager is implemented by results that have a protobuf representation.
type ProtoMessager interface {
	ToProto() (proto.Message, error)
}

// GinContext adapts a gin request to httpcalc.Context.
// Request data is copied at construction; gin recycles its context once the
// route handler returns, which may happen before a timed out handler does.
type GinContext struct {
	httpcalc.BaseContext
	gc *gin.Context

	id     string
	method string
	path   string
	query  url.Values

	writeMu sync.Mutex
	closed  bool
}

// NewGinContext wraps gc. Trace context in the request headers becomes the parent of the handler span.
func NewGinContext(gc *gin.Context) *GinContext {
	path := gc.FullPath()
	if path == "" {
		path = gc.Request.URL.Path
	}

	c := GinContext{
		gc:     gc,
		id:     gc.GetString(requestIDKey),
		method: gc.Request.Method,
		path:   path,
		query:  parseQuery(gc.Request.URL.RawQuery),
	}
	c.SetCtx(otel.GetTextMapPropagator().Extract(
		gc.Request.Context(),
		propagation.HeaderCarrier(gc.Request.Header),
	))
	c.BaseReply = c.render
	return &c
}

func (c *GinContext) ID() string {
	return c.id
}

func (c *GinContext) Method() string {
	return c.method
}

// Path returns the matched route pattern, which for static routes is the request path.
func (c *GinContext) Path() string {
	return c.path
}

// Query returns the parsed query string. Malformed escapes are kept as literal text.
func (c *GinContext) Query() url.Values {
	return c.query
}

func (c *GinContext) ReplyDesc() string {
	return c.Method() + " " + c.Path() + " " + c.ID()
}

func (c *GinContext) PrometheusLabels() prometheus.Labels {
	return prometheus.Labels{
		"method": c.Method(),
		"path":   c.Path(),
	}
}

// close stops later replies from touching the response writer once the gin handler has returned.
func (c *GinContext) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.closed = true
}

func (c *GinContext) render(res *httpcalc.Response) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return
	}

	if res.Error != nil {
		c.gc.String(res.Status, res.Error.Error())
		return
	}

	switch v := res.Result.(type) {
	case nil:
		c.gc.Status(res.Status)
	case httpcalc.Text:
		c.gc.String(res.Status, string(v))
	case ProtoMessager:
		if !c.acceptsProtobuf() {
			c.gc.JSON(res.Status, v)
			return
		}
		data, err := marshalProto(v)
		if err != nil {
			zap.S().Errorw("Protobuf encoding failed, falling back to JSON", "module", "httpcalc.ginhttp", "error", err)
			c.gc.JSON(res.Status, v)
			return
		}
		c.gc.Data(res.Status, binding.MIMEPROTOBUF, data)
	default:
		c.gc.JSON(res.Status, v)
	}
}

func (c *GinContext) acceptsProtobuf() bool {
	return strings.Contains(c.gc.GetHeader("Accept"), binding.MIMEPROTOBUF)
}

func marshalProto(v ProtoMessager) ([]byte, error) {
	msg, err := v.ToProto()
	if err != nil {
		return nil, err
	}
	return proto.Marshal(msg)
}
