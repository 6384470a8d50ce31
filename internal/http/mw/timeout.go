package mw

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
)

// TimeoutConfig defines per-path request deadlines. Generation endpoints
// sit on a provider round-trip and get the extended budget; everything
// else gets the short default.
type TimeoutConfig struct {
	Default          time.Duration
	Extended         time.Duration
	ExtendedPatterns []string
}

type timeoutPanic struct {
	value any
	stack []byte
}

// Timeout returns middleware that bounds each request with a deadline
// chosen from the config. A handler panic inside the watched goroutine is
// re-raised with its original stack so Recoverer reports the real site.
func Timeout(cfg TimeoutConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			timeout := cfg.Default
			for _, pattern := range cfg.ExtendedPatterns {
				if strings.Contains(r.URL.Path, pattern) {
					timeout = cfg.Extended
					break
				}
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			panicked := make(chan *timeoutPanic, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- &timeoutPanic{value: p, stack: debug.Stack()}
					}
				}()
				next.ServeHTTP(w, r.WithContext(ctx))
				close(done)
			}()

			select {
			case <-done:
			case p := <-panicked:
				panic(fmt.Sprintf("%v\n\nOriginal stack trace:\n%s", p.value, p.stack))
			case <-ctx.Done():
				if ctx.Err() == context.DeadlineExceeded {
					w.WriteHeader(http.StatusGatewayTimeout)
				}
			}
		})
	}
}
