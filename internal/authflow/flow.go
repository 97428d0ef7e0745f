package authflow

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"relint/internal/loopback"
)

// ClientID is the fixed client identifier embedded in the login URL so the
// server can label the session.
const ClientID = "relint"

// DefaultTimeout bounds how long Run waits for the browser callback when no
// timeout option is given.
const DefaultTimeout = 5 * time.Minute

// ErrTimeout is returned when the browser does not deliver a token before
// the flow's deadline.
var ErrTimeout = errors.New("timed out waiting for the browser to deliver a token")

//go:embed templates/success.html
var successHTML []byte

// State tracks where a login attempt is in its lifecycle. Every terminal
// state closes the callback server before Run returns.
type State int

const (
	// StateIdle means Run has not been called yet.
	StateIdle State = iota
	// StateServerStarted means the callback server is bound to a port.
	StateServerStarted
	// StateAwaitingCallback means the browser has been pointed at the login
	// page and the flow is waiting for the token.
	StateAwaitingCallback
	// StateTokenReceived is the successful terminal state.
	StateTokenReceived
	// StateTimedOut means the deadline elapsed before a token arrived.
	StateTimedOut
	// StateCancelled means the context was cancelled while waiting.
	StateCancelled
)

// String returns the string representation of the flow state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateServerStarted:
		return "server_started"
	case StateAwaitingCallback:
		return "awaiting_callback"
	case StateTokenReceived:
		return "token_received"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Flow is one browser token acquisition attempt: it starts the loopback
// callback server, sends the user's browser to the remote login page, and
// waits for exactly one token delivery.
type Flow struct {
	serverURL string
	timeout   time.Duration
	ports     loopback.Config
	open      func(string) error

	mu    sync.Mutex
	state State
}

// Option customizes a Flow.
type Option func(*Flow)

// WithTimeout overrides the default wall-clock timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithPortRange overrides the callback server's port scan range.
func WithPortRange(start, end int) Option {
	return func(f *Flow) {
		f.ports = loopback.Config{PortRangeStart: start, PortRangeEnd: end}
	}
}

// WithBrowserOpener replaces the platform browser launcher, used by tests.
func WithBrowserOpener(open func(string) error) Option {
	return func(f *Flow) {
		f.open = open
	}
}

// New creates a flow targeting the login page of serverURL.
func New(serverURL string, opts ...Option) *Flow {
	f := &Flow{
		serverURL: serverURL,
		timeout:   DefaultTimeout,
		open:      openBrowser,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the flow's current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

// Run executes the flow and returns the received token. The callback server
// is always closed before Run returns, regardless of outcome. A browser that
// cannot be launched is logged, not fatal: the user can still open the
// printed URL by hand.
func (f *Flow) Run(ctx context.Context) (string, error) {
	tokenCh := make(chan string, 1)
	var once sync.Once
	deliver := func(token string) {
		// First successful extraction wins; later deliveries are no-ops.
		once.Do(func() { tokenCh <- token })
	}

	server, err := loopback.Start(f.callbackHandler(deliver), f.ports)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server: %w", err)
	}
	defer server.Close()
	f.setState(StateServerStarted)

	loginURL, err := f.loginURL(server.Port())
	if err != nil {
		return "", err
	}

	if err := f.open(loginURL); err != nil {
		slog.Warn("could not open browser, open the login URL manually",
			"url", loginURL,
			"error", err,
		)
	}
	f.setState(StateAwaitingCallback)

	timer := time.NewTimer(f.timeout)
	defer timer.Stop()

	select {
	case token := <-tokenCh:
		f.setState(StateTokenReceived)
		return token, nil
	case <-timer.C:
		f.setState(StateTimedOut)
		return "", ErrTimeout
	case <-ctx.Done():
		f.setState(StateCancelled)
		return "", ctx.Err()
	}
}

// loginURL builds <server>/sonarlint/auth?ideName=<client>&port=<port>.
func (f *Flow) loginURL(port int) (string, error) {
	u, err := url.Parse(f.serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", f.serverURL, err)
	}
	u = u.JoinPath("sonarlint", "auth")

	q := u.Query()
	q.Set("ideName", ClientID)
	q.Set("port", strconv.Itoa(port))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// callbackHandler extracts a token from either a GET query parameter or a
// JSON POST body. Any other shape leaves the flow waiting: the request is
// still answered 200, but no delivery happens.
func (f *Flow) callbackHandler(deliver func(string)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			token := r.URL.Query().Get("token")
			if token == "" {
				w.WriteHeader(http.StatusOK)
				return
			}
			writeSuccessPage(w)
			deliver(token)

		case http.MethodPost:
			var payload struct {
				Token string `json:"token"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Token == "" {
				// Malformed JSON or missing field: no token, keep waiting.
				w.WriteHeader(http.StatusOK)
				return
			}
			writeSuccessPage(w)
			deliver(payload.Token)

		default:
			w.WriteHeader(http.StatusOK)
		}
	})
}

func writeSuccessPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(successHTML)
}
