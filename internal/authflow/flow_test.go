package authflow

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPorts keeps the flow tests off the default range so they cannot race
// other packages' listeners.
func testPorts() Option {
	return WithPortRange(64200, 64220)
}

type flowResult struct {
	token string
	err   error
}

// startFlow runs the flow in the background and hands back the login URL the
// browser would have been sent to, plus a channel with the result.
func startFlow(t *testing.T, ctx context.Context, opts ...Option) (loginURL string, results chan flowResult) {
	t.Helper()

	urlCh := make(chan string, 1)
	opts = append(opts, testPorts(), WithBrowserOpener(func(u string) error {
		urlCh <- u
		return nil
	}))
	flow := New("https://quality.example.com", opts...)

	results = make(chan flowResult, 1)
	go func() {
		token, err := flow.Run(ctx)
		results <- flowResult{token, err}
	}()

	select {
	case loginURL = <-urlCh:
	case <-time.After(5 * time.Second):
		t.Fatal("flow never opened the browser")
	}
	return loginURL, results
}

// callbackBase extracts the local callback base URL from the login URL's
// port parameter.
func callbackBase(t *testing.T, loginURL string) string {
	t.Helper()
	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	port := u.Query().Get("port")
	require.NotEmpty(t, port)
	return "http://127.0.0.1:" + port
}

func TestFlow_LoginURLShape(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loginURL, _ := startFlow(t, ctx)

	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	assert.Equal(t, "quality.example.com", u.Hostname())
	assert.Equal(t, "/sonarlint/auth", u.Path)
	assert.Equal(t, ClientID, u.Query().Get("ideName"))
	assert.NotEmpty(t, u.Query().Get("port"))
}

func TestFlow_TokenViaQueryParameter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loginURL, results := startFlow(t, ctx)
	base := callbackBase(t, loginURL)

	resp, err := http.Get(base + "/?token=abc123")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	result := <-results
	require.NoError(t, result.err)
	assert.Equal(t, "abc123", result.token)

	// The server must be closed once the flow resolves.
	assert.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", strings.TrimPrefix(base, "http://"), 100*time.Millisecond)
		if err != nil {
			return true
		}
		conn.Close()
		return false
	}, 3*time.Second, 50*time.Millisecond, "callback port should stop accepting connections")
}

func TestFlow_TokenViaJSONPost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loginURL, results := startFlow(t, ctx)
	base := callbackBase(t, loginURL)

	resp, err := http.Post(base+"/", "application/json", strings.NewReader(`{"token":"post-tok"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	result := <-results
	require.NoError(t, result.err)
	assert.Equal(t, "post-tok", result.token)
}

func TestFlow_IgnoresNonTokenShapes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loginURL, results := startFlow(t, ctx, WithTimeout(10*time.Second))
	base := callbackBase(t, loginURL)

	// None of these carry a usable token; each gets 200 and the flow keeps
	// waiting.
	for _, send := range []func() (*http.Response, error){
		func() (*http.Response, error) { return http.Get(base + "/") },
		func() (*http.Response, error) { return http.Get(base + "/?token=") },
		func() (*http.Response, error) {
			return http.Post(base+"/", "application/json", strings.NewReader(`{not json`))
		},
		func() (*http.Response, error) {
			return http.Post(base+"/", "application/json", strings.NewReader(`{"nope":"x"}`))
		},
		func() (*http.Response, error) {
			req, _ := http.NewRequest(http.MethodPut, base+"/", nil)
			return http.DefaultClient.Do(req)
		},
	} {
		resp, err := send()
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	select {
	case result := <-results:
		t.Fatalf("flow resolved unexpectedly: token=%q err=%v", result.token, result.err)
	case <-time.After(300 * time.Millisecond):
	}

	// A real token still resolves the flow afterwards.
	resp, err := http.Get(base + "/?token=late")
	require.NoError(t, err)
	resp.Body.Close()

	result := <-results
	require.NoError(t, result.err)
	assert.Equal(t, "late", result.token)
}

func TestFlow_FirstTokenWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loginURL, results := startFlow(t, ctx)
	base := callbackBase(t, loginURL)

	for _, token := range []string{"first", "second"} {
		resp, err := http.Get(fmt.Sprintf("%s/?token=%s", base, token))
		if err != nil {
			// The server may already be closing after the first delivery.
			break
		}
		resp.Body.Close()
	}

	result := <-results
	require.NoError(t, result.err)
	assert.Equal(t, "first", result.token)
}

func TestFlow_StateTransitions(t *testing.T) {
	flow := New("https://quality.example.com",
		testPorts(),
		WithTimeout(150*time.Millisecond),
		WithBrowserOpener(func(string) error { return nil }),
	)
	assert.Equal(t, StateIdle, flow.State())

	_, err := flow.Run(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateTimedOut, flow.State())
}

func TestFlow_Timeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, results := startFlow(t, ctx, WithTimeout(200*time.Millisecond))

	result := <-results
	assert.ErrorIs(t, result.err, ErrTimeout)
	assert.Empty(t, result.token)
}

func TestFlow_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	_, results := startFlow(t, ctx, WithTimeout(10*time.Second))
	cancel()

	result := <-results
	assert.ErrorIs(t, result.err, context.Canceled)
}

func TestFlow_BrowserFailureIsNotFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	urlCh := make(chan string, 1)
	flow := New("https://quality.example.com",
		testPorts(),
		WithTimeout(10*time.Second),
		WithBrowserOpener(func(u string) error {
			urlCh <- u
			return fmt.Errorf("no browser installed")
		}),
	)

	results := make(chan error, 1)
	tokens := make(chan string, 1)
	go func() {
		token, err := flow.Run(ctx)
		tokens <- token
		results <- err
	}()

	loginURL := <-urlCh
	base := callbackBase(t, loginURL)

	// The flow must still be waiting despite the browser failure.
	resp, err := http.Get(base + "/?token=manual")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "manual", <-tokens)
	assert.NoError(t, <-results)
}
