// Package ginhttp serves an httpcalc.Server over HTTP using gin.
//
// Unknown paths get 404 and known paths with the wrong method get 405; both
// come from gin and never reach the handlers.
package ginhttp

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/xizhibei/go-httpcalc"
	"github.com/xizhibei/go-httpcalc/compressor"
	"go.uber.org/zap"
)

type serverOptions struct {
	compression bool
	minLength   int
	rpcOptions  []httpcalc.ServerOption
}

// Option configures the HTTP server.
type Option func(o *serverOptions)

// WithCompression enables response compression for bodies of at least minLength bytes.
func WithCompression(minLength int) Option {
	return func(o *serverOptions) {
		o.compression = true
		o.minLength = minLength
	}
}

// WithServerOptions passes options through to the embedded httpcalc.Server.
func WithServerOptions(options ...httpcalc.ServerOption) Option {
	return func(o *serverOptions) {
		o.rpcOptions = append(o.rpcOptions, options...)
	}
}

// Server exposes registered handlers as HTTP routes.
type Server struct {
	*httpcalc.Server
	engine     *gin.Engine
	compressor *compressor.CompressorManager
	log        *zap.SugaredLogger

	mountedMu sync.Mutex
	mounted   map[httpcalc.Route]bool
}

// New creates a Server with a fresh gin engine.
// The engine answers 405 for known paths with the wrong method and does not
// redirect trailing slashes.
func New(options ...Option) *Server {
	var o serverOptions
	for _, option := range options {
		option(&o)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := Server{
		Server:     httpcalc.NewServer(o.rpcOptions...),
		engine:     engine,
		compressor: compressor.NewCompressorManager(),
		log:        zap.S().With("module", "httpcalc.ginhttp"),
		mounted:    make(map[httpcalc.Route]bool),
	}

	engine.Use(requestID(), accessLog(s.log), recovery(s.log))
	if o.compression {
		engine.Use(compress(s.compressor, o.minLength))
	}

	return &s
}

// Register registers the handler with the dispatch table and mounts the route on the engine.
// Registering the same route again replaces the handler.
func (s *Server) Register(method, path string, hdl *httpcalc.Handler) {
	s.Server.Register(method, path, hdl)

	s.mountedMu.Lock()
	defer s.mountedMu.Unlock()

	route := httpcalc.Route{Method: method, Path: path}
	if s.mounted[route] {
		return
	}
	s.engine.Handle(method, path, s.serve)
	s.mounted[route] = true
}

// Handler returns the http.Handler serving all registered routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) serve(gc *gin.Context) {
	c := NewGinContext(gc)
	defer c.close()

	s.Server.Call(c)
}
