package httpcalc

import (
	"context"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Jeffail/tunny"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xizhibei/go-httpcalc/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// ErrNoReply is an error indicating the handler returned without replying.
	ErrNoReply = errors.New("[HTTPCALC] empty reply")

	// ErrTimeout is an error indicating the handler did not finish in time.
	ErrTimeout = errors.New("[HTTPCALC] timeout")

	// ErrNoRoute is an error indicating no handler is registered for the path.
	ErrNoRoute = errors.New("[HTTPCALC] no route")

	// ErrMethodNotAllowed is an error indicating the path exists but not for the method.
	ErrMethodNotAllowed = errors.New("[HTTPCALC] method not allowed")

	// ErrInternal is the reply to a handler that panicked. The panic value is only logged.
	ErrInternal = errors.New("[HTTPCALC] internal server error")
)

// Route is a registered (method, path) pair.
type Route struct {
	Method string
	Path   string
}

func (r Route) String() string {
	return r.Method + " " + r.Path
}

// Server dispatches requests from any transport to registered handlers.
type Server struct {
	log        *zap.SugaredLogger
	handlerMap map[string]map[string]*Handler // path -> method -> handler
	handlerMu  sync.RWMutex

	cbList       []OnAfterResponseCallback
	afterResPool sync.Pool

	options    *serverOptions
	workerPool *tunny.Pool
	telemetry  telemetry.Telemetry
}

// NewServer creates a new instance of the Server struct with the provided options.
// It initializes the server with default values for the options that are not provided.
func NewServer(options ...ServerOption) *Server {
	o := serverOptions{
		name:           uuid.New().String(),
		logResponse:    false,
		workerNum:      runtime.NumCPU(),
		handlerTimeout: 5 * time.Second,
	}

	for _, option := range options {
		option(&o)
	}

	if o.workerNum < 1 {
		o.workerNum = 1
	}

	tel, _ := telemetry.NewNoop()

	return &Server{
		log:        zap.S().With("module", "httpcalc.server"),
		handlerMap: make(map[string]map[string]*Handler),
		options:    &o,

		afterResPool: sync.Pool{
			New: func() interface{} {
				return new(AfterResponseEvent)
			},
		},
		workerPool: tunny.NewCallback(o.workerNum),
		telemetry:  tel,
	}
}

// Name returns the server name used in metrics.
func (s *Server) Name() string {
	return s.options.name
}

// SetTelemetry replaces the telemetry used for spans and request metrics.
func (s *Server) SetTelemetry(t telemetry.Telemetry) {
	s.telemetry = t
}

// Register registers a handler for the given method and path.
// If the pair is already registered, it will be overridden.
func (s *Server) Register(method, path string, hdl *Handler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()

	methods, ok := s.handlerMap[path]
	if !ok {
		methods = make(map[string]*Handler)
		s.handlerMap[path] = methods
	}

	if _, ok := methods[method]; ok {
		s.log.Warnf("Route %s %s already registered, will override", method, path)
	}

	methods[method] = hdl
	s.log.Debugf("Route %s %s registered", method, path)
}

// Routes returns the registered routes ordered by path, then method.
func (s *Server) Routes() []Route {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()

	routes := make([]Route, 0, len(s.handlerMap))
	for path, methods := range s.handlerMap {
		for method := range methods {
			routes = append(routes, Route{Method: method, Path: path})
		}
	}
	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

func (s *Server) lookup(method, path string) (*Handler, error) {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()

	methods, ok := s.handlerMap[path]
	if !ok {
		return nil, errors.Wrapf(ErrNoRoute, "%s %s", method, path)
	}
	hdl, ok := methods[method]
	if !ok {
		return nil, errors.Wrapf(ErrMethodNotAllowed, "%s %s", method, path)
	}
	return hdl, nil
}

// Call handles a request by executing the matching handler on the worker pool.
// It measures the duration of the call, logs the response if enabled, and emits an event after the response.
// If the call exceeds the timeout, panics or never replies, it replies with an appropriate error.
func (s *Server) Call(c Context) {
	start := time.Now()
	route := Route{Method: c.Method(), Path: c.Path()}.String()

	ctx, span := s.telemetry.StartSpan(c.Ctx(), route, trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	if sc, ok := c.(interface{ SetCtx(context.Context) }); ok {
		sc.SetCtx(ctx)
	}

	defer func() {
		duration := time.Since(start)

		evt := s.afterResPool.Get().(*AfterResponseEvent)
		evt.Labels = c.PrometheusLabels()
		evt.Duration = duration
		evt.Res = c.GetResponse()

		status := 0
		var resErr error
		if evt.Res != nil {
			status = evt.Res.Status
			resErr = evt.Res.Error
		}

		if s.options.logResponse {
			s.log.Infof("Response to %s [%d] (%v)", c.ReplyDesc(), status, duration.Round(time.Millisecond))
		}

		s.telemetry.RecordRequest(ctx, duration, route, strconv.Itoa(status), resErr)
		if resErr != nil && status >= StatusServerError {
			span.RecordError(resErr)
			span.SetStatus(codes.Error, resErr.Error())
		}

		s.emitAfterResponse(evt)
	}()

	hdl, err := s.lookup(c.Method(), c.Path())
	if err != nil {
		status := StatusNotFound
		if errors.Is(err, ErrMethodNotAllowed) {
			status = StatusMethodNotAllowed
		}
		c.ReplyError(status, err)
		return
	}

	timeout := hdl.Timeout
	if timeout <= 0 {
		timeout = s.options.handlerTimeout
	}

	_, err = s.workerPool.ProcessTimed(func() {
		defer func() {
			if i := recover(); i != nil {
				s.log.Desugar().WithOptions(zap.AddStacktrace(zapcore.ErrorLevel)).Sugar().Errorf("panic in %s %v", route, i)
				c.ReplyError(StatusServerError, ErrInternal)
			}
		}()

		hdl.Method(c)

		// If the send is successful, it means that the handler did not reply.
		if c.ReplyError(StatusServerError, ErrNoReply) {
			s.log.Warnf("Route %s no reply", route)
		}
	}, timeout)

	if err != nil {
		if errors.Is(err, tunny.ErrJobTimedOut) {
			c.ReplyError(StatusRequestTimeout, ErrTimeout)
			return
		}
		c.ReplyError(StatusServerError, err)
	}
}

// Close stops the worker pool. The server must not be called afterwards.
func (s *Server) Close() error {
	s.workerPool.Close()
	return nil
}

// AfterResponseEvent carries the labels, duration and response of a finished request.
type AfterResponseEvent struct {
	Labels   prometheus.Labels
	Duration time.Duration
	Res      *Response
}

// OnAfterResponseCallback is a function type that represents a callback function
// to be executed after a response is sent.
// The event is recycled once all callbacks return; callbacks must not retain it.
type OnAfterResponseCallback func(e *AfterResponseEvent)

// OnAfterResponse registers a callback function to be executed after each response is sent.
// It is not safe to call concurrently with Call.
func (s *Server) OnAfterResponse(cb OnAfterResponseCallback) {
	s.cbList = append(s.cbList, cb)
}

func (s *Server) emitAfterResponse(e *AfterResponseEvent) {
	for _, cb := range s.cbList {
		cb(e)
	}
	e.Labels = nil
	e.Res = nil
	e.Duration = 0
	s.afterResPool.Put(e)
}

// RegisterMetrics registers metrics for monitoring the server's response time and error count.
// responseTime observes every request in seconds; errorCount is incremented for every reply
// carrying an error. Both vectors must be declared with MetricLabels.
func (s *Server) RegisterMetrics(responseTime *prometheus.HistogramVec, errorCount *prometheus.CounterVec) {
	s.OnAfterResponse(func(e *AfterResponseEvent) {
		status := "0"
		var resErr error
		if e.Res != nil {
			status = strconv.FormatInt(int64(e.Res.Status), 10)
			resErr = e.Res.Error
		}

		labels := prometheus.Labels{}
		for _, name := range MetricLabels {
			labels[name] = e.Labels[name]
		}
		labels["name"] = s.options.name
		labels["status"] = status
		// Unmatched paths come from the client; keep them out of the label space.
		if status == strconv.Itoa(StatusNotFound) {
			labels["path"] = "unmatched"
		}

		if responseTime != nil {
			responseTime.
				With(labels).
				Observe(e.Duration.Seconds())
		}

		if resErr != nil && errorCount != nil {
			errorCount.
				With(labels).
				Inc()
		}
	})
}
