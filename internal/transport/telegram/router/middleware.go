package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "remindbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// slowRequest promotes successful requests to INFO. Most reminder commands
// are a single store write and stay at DEBUG.
const slowRequest = 750 * time.Millisecond

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// MWPanicRecover turns a handler panic into an error.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				req.logger(log).Error("handler panicked", logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
				err = fmt.Errorf("panic in %s: %v", req.Command, rec)
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog writes one line per request once the handler returns. Fields
// a handler attached with Request.Note, such as the reminder it created or
// cancelled, are included.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			l := req.logger(log).With(append([]logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.Duration("dur", took),
			}, req.notes...)...)
			switch {
			case err != nil:
				l.Warn("request failed", logx.Err(err))
			case took >= slowRequest:
				l.Info("request ok (slow)")
			default:
				l.Debug("request ok")
			}
			return err
		}
	}
}

// logger prefers the request-scoped logger, which already carries rid,
// chat and sender.
func (r *Request) logger(fallback logx.Logger) logx.Logger {
	if r == nil || r.Logger.IsZero() {
		return fallback
	}
	return r.Logger
}
