package httpcalc

import "time"

type serverOptions struct {
	logResponse    bool
	name           string
	workerNum      int
	handlerTimeout time.Duration
}

// ServerOption is a functional option for configuring the server.
type ServerOption func(o *serverOptions)

// WithServerName is a function that returns a ServerOption to set the name of the server.
// The name is attached to every metric the server reports.
func WithServerName(name string) ServerOption {
	return func(o *serverOptions) {
		o.name = name
	}
}

// WithLogResponse is a function that returns a ServerOption to enable or disable logging of response.
// It takes a boolean parameter logResponse, which determines whether to log the response or not.
func WithLogResponse(logResponse bool) ServerOption {
	return func(o *serverOptions) {
		o.logResponse = logResponse
	}
}

// WithWorkerNum is a function that returns a ServerOption which sets the number of workers for the server.
// The count parameter specifies the number of workers to be set.
func WithWorkerNum(count int) ServerOption {
	return func(o *serverOptions) {
		o.workerNum = count
	}
}

// WithHandlerTimeout sets the timeout used for handlers registered without one.
// Default value is 5 seconds.
func WithHandlerTimeout(d time.Duration) ServerOption {
	return func(o *serverOptions) {
		o.handlerTimeout = d
	}
}
