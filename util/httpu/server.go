package httpu

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"time"
)

const shutdownGrace = 5 * time.Second

// Server is an http.Server that shuts down when a context ends and treats
// handler panics as fatal rather than recovering and carrying on like
// net/http does.
type Server struct {
	http.Server
}

func NewServer(handler http.Handler) *Server {
	return &Server{http.Server{Handler: handler}}
}

// Serve blocks serving the listener until ctx is canceled or a handler
// panics, then drains in-flight requests for a grace period. Returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	ctx, fail := context.WithCancelCause(ctx)
	defer fail(nil)

	s.Server.Handler = &failOnPanic{handler: s.Server.Handler, fail: fail}

	go func() {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		s.Server.Shutdown(drainCtx)
	}()

	return s.Server.Serve(l)
}

// failOnPanic dumps the stack of a panicking handler and cancels the
// server's context so the process sees the failure.
type failOnPanic struct {
	handler http.Handler
	fail    context.CancelCauseFunc
}

func (h *failOnPanic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if v := recover(); v != nil {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "panic: %v\n\n%s", v, buf[:n])
			if err, ok := v.(error); ok {
				h.fail(err)
			} else {
				h.fail(fmt.Errorf("handler panic: %v", v))
			}
		}
	}()
	h.handler.ServeHTTP(w, r)
}
