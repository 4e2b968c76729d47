package oauth

import (
	"context"
	_ "embed"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"marketauth/internal/auth"
)

// DefaultCallbackPort is the port the default redirect URI is registered
// with.
const DefaultCallbackPort = 8000

// DefaultCallbackPath is the URL path of the authorization redirect.
const DefaultCallbackPath = "/callback"

// DefaultCallbackTimeout is how long Authenticate waits for the user to
// complete authorization in the browser.
const DefaultCallbackTimeout = 5 * time.Minute

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	callbackSuccessTmpl = template.Must(template.New("success").Parse(callbackSuccessHTML))
	callbackErrorTmpl   = template.Must(template.New("error").Parse(callbackErrorHTML))
)

// CallbackResult is what one listener lifetime produces: either an
// authorization code plus the echoed state, or a provider-reported error.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError reports whether the provider redirected back with an error.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// CallbackServer is a short-lived HTTP listener bound to the loopback
// interface. It accepts exactly one qualifying request on the callback
// path, hands the result to the waiting flow over a one-shot channel, and
// shuts down. Requests for any other path (browser favicon probes and the
// like) receive a generic response and are ignored.
type CallbackServer struct {
	port int
	path string

	server   *http.Server
	listener net.Listener
	resultCh chan *CallbackResult
	errCh    chan error

	handleOnce sync.Once
	stopOnce   sync.Once
}

// NewCallbackServer creates a callback server for the given port and path.
// Port 0 selects an ephemeral port; an empty path means DefaultCallbackPath.
func NewCallbackServer(port int, path string) *CallbackServer {
	if path == "" {
		path = DefaultCallbackPath
	}
	return &CallbackServer{
		port:     port,
		path:     path,
		resultCh: make(chan *CallbackResult, 1),
		errCh:    make(chan error, 1),
	}
}

// Start binds the listener on 127.0.0.1 and begins serving in the
// background. The listener is never bound to a routable interface. It
// returns the redirect URI to use in the authorization request, and a
// CallbackError (bind failure) when the port cannot be bound.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", &auth.CallbackError{
			Reason: auth.CallbackBindFailure,
			Detail: addr,
			Err:    err,
		}
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	// A single catch-all handler routed on the request path: registering
	// the callback path and "/" separately would collide in the mux when
	// the callback path itself is "/".
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()

	// Stop when the surrounding flow is cancelled.
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	slog.Debug("callback server listening",
		"addr", listener.Addr().String(),
		"path", s.path,
	)

	return s.RedirectURI(), nil
}

// WaitForCallback blocks until the first qualifying request arrives, the
// context expires, or the listener fails. The listener's own accept loop
// is never blocked by this wait.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (*CallbackResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// handleRequest serves every request on the listener. Only requests on
// the callback path qualify, and only the first of those counts; anything
// else (favicon probes, repeat callbacks) gets a generic page and is never
// treated as a result.
func (s *CallbackServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != s.path {
		s.writeGenericPage(w)
		return
	}

	var claimed bool
	s.handleOnce.Do(func() {
		claimed = true
		s.processCallback(w, r)
	})

	if !claimed {
		s.writeGenericPage(w)
	}
}

func (s *CallbackServer) writeGenericPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintln(w, "Nothing to see here. You may close this window.")
}

// processCallback runs exactly once per listener lifetime.
func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	query := r.URL.Query()
	result := &CallbackResult{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	// The browser always gets a terminal "you may close this window" page,
	// success or not.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if result.IsError() {
		_ = callbackErrorTmpl.Execute(w, map[string]string{
			"Error":       result.Error,
			"Description": result.ErrorDescription,
		})
	} else {
		_ = callbackSuccessTmpl.Execute(w, nil)
	}

	select {
	case s.resultCh <- result:
	default:
	}

	// Let the response reach the browser before tearing the listener down.
	go func() {
		time.Sleep(1 * time.Second)
		s.Stop()
	}()
}

// Stop closes the listener and releases the port. It is idempotent and
// safe to call from multiple goroutines or after a timeout.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// RedirectURI returns the redirect URI served by this listener.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", s.port, s.path)
}

// Port returns the bound port (useful when an ephemeral port was chosen).
func (s *CallbackServer) Port() int {
	return s.port
}
