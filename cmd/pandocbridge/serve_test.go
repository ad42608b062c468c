package main

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	bridge "github.com/SaveTheRbtz/pandoc-bridge-go"
	"github.com/SaveTheRbtz/pandoc-bridge-go/engine/htmlmd"
	"github.com/SaveTheRbtz/pandoc-bridge-go/engine/identity"
	"github.com/SaveTheRbtz/pandoc-bridge-go/env"
)

const document = "# Grüße\n\nSome *markdown* with emoji 😀.\n"

func newTestApp(t *testing.T, engine env.Engine) *fiber.App {
	t.Helper()

	lease, err := bridge.Acquire(engine)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lease.Release() })

	srv, err := newServer(engine, 8, zaptest.NewLogger(t), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(srv.close)
	return srv.app(1 << 20)
}

func post(t *testing.T, app *fiber.App, query url.Values, body io.Reader, header http.Header) (int, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/convert?"+query.Encode(), body)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestServeConvert(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, identity.New())
	q := url.Values{"from": {"markdown"}, "to": {"markdown"}}

	// Every request gets a session of its own.
	for i := 0; i < 3; i++ {
		code, body := post(t, app, q, strings.NewReader(document), nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, document, body)
	}
}

func TestServeConversionError(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, identity.New())
	q := url.Values{"from": {"markdown"}, "to": {"docx"}}

	code, body := post(t, app, q, strings.NewReader(document), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, `identity engine cannot convert "markdown" to "docx"`, body)
}

func TestServeHTML(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, htmlmd.New())
	q := url.Values{"from": {"html"}, "to": {"gfm"}, "settings": {"selector: main"}}

	code, body := post(t, app, q, strings.NewReader("<nav>menu</nav><main><h2>Hi</h2><p><em>there</em></p></main>"), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "## Hi")
	assert.Contains(t, body, "*there*")
	assert.NotContains(t, body, "menu")
}

func TestServeZstdBody(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, identity.New())

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll([]byte(document), nil)
	require.NoError(t, enc.Close())

	header := http.Header{fiber.HeaderContentEncoding: {"zstd"}}
	code, body := post(t, app, nil, strings.NewReader(string(compressed)), header)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, document, body)

	code, _ = post(t, app, nil, strings.NewReader("not zstd at all"), header)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServeMetrics(t *testing.T) {
	t.Parallel()

	app := newTestApp(t, identity.New())
	post(t, app, url.Values{"from": {"md"}, "to": {"md"}}, strings.NewReader(document), nil)
	post(t, app, url.Values{"from": {"md"}, "to": {"html"}}, strings.NewReader(document), nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `pandocbridge_conversions_total{result="ok"} 1`)
	assert.Contains(t, string(b), `pandocbridge_conversions_total{result="conversion_error"} 1`)
	assert.Contains(t, string(b), "pandocbridge_pulled_bytes_total")
}

// exitFailingEngine fails its teardown.
type exitFailingEngine struct {
	*identity.Engine
}

func (e *exitFailingEngine) Exit() error {
	return errors.New("teardown failed")
}

func TestServeLogsCloseError(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	srv, err := newServer(&exitFailingEngine{identity.New()}, 8, zap.New(core), prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(srv.close)

	// No pinned lease: closing the request's session tears the engine down.
	code, body := post(t, srv.app(1<<20), nil, strings.NewReader(document), nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, document, body)

	entries := logs.FilterMessage("failed to close session").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "teardown failed")
}
