package httpcalc

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Text marks a reply result that transports render as plain text.
type Text string

// Response represents a reply produced by a handler.
// Result holds the response data.
// Error holds any error that occurred during the request.
// Status holds the status code of the response.
type Response struct {
	Result interface{}
	Error  error
	Status int
}

// Context is what a handler sees of a single request.
type Context interface {
	// ID returns the request identifier assigned by the transport.
	ID() string

	// Method returns the request method, e.g. GET.
	Method() string

	// Path returns the route path, e.g. /add.
	Path() string

	// Ctx returns the underlying context.Context.
	Ctx() context.Context

	// Query returns the decoded request parameters.
	Query() url.Values

	// ReplyDesc returns a short description of where the reply goes, for logs.
	ReplyDesc() string

	// Reply sends a response message.
	// It returns true if this call delivered the reply, false if a reply was already sent.
	Reply(res *Response) bool

	// ReplyOK sends a successful response message with the given data.
	ReplyOK(data interface{}) bool

	// ReplyError sends an error response message with the given status and error.
	ReplyError(status int, err error) bool

	// GetResponse returns the response that was sent, or nil.
	GetResponse() *Response

	// PrometheusLabels returns the Prometheus labels associated with the request.
	PrometheusLabels() prometheus.Labels
}

// BaseContext implements the reply bookkeeping shared by every transport.
// Transports embed it and set BaseReply to their renderer.
type BaseContext struct {
	res       *Response
	resMu     sync.Mutex
	replied   atomic.Bool
	BaseReply func(res *Response)
	ctx       context.Context
}

// Ctx returns the context associated with the BaseContext.
// If no context is set, it returns the background context.
func (c *BaseContext) Ctx() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// SetCtx replaces the underlying context.
func (c *BaseContext) SetCtx(ctx context.Context) {
	c.ctx = ctx
}

// Reply sends a response to the client.
// Only the first call delivers; later calls return false and are dropped.
func (c *BaseContext) Reply(res *Response) bool {
	if !c.replied.CompareAndSwap(false, true) {
		return false
	}

	c.setResponse(res)

	if c.BaseReply != nil {
		c.BaseReply(res)
	}

	return true
}

// ReplyOK sends a successful response with the given data.
func (c *BaseContext) ReplyOK(data interface{}) bool {
	return c.Reply(&Response{
		Status: StatusOK,
		Result: data,
	})
}

// ReplyError sends an error response with the specified status code and error.
func (c *BaseContext) ReplyError(status int, err error) bool {
	return c.Reply(&Response{
		Status: status,
		Error:  err,
	})
}

func (c *BaseContext) setResponse(res *Response) {
	c.resMu.Lock()
	defer c.resMu.Unlock()
	c.res = res
}

// GetResponse returns the response associated with the context.
func (c *BaseContext) GetResponse() *Response {
	c.resMu.Lock()
	defer c.resMu.Unlock()
	return c.res
}

// Handler represents a request handler.
// Method is the function to be executed when handling the request.
// Timeout is the maximum duration allowed for the request to complete; zero
// means the server default.
type Handler struct {
	Method  func(c Context)
	Timeout time.Duration
}
