package htmlmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridge "github.com/SaveTheRbtz/pandoc-bridge-go"
)

const page = `<html>
<head><title>ignored</title></head>
<body>
  <nav><a href="/">Home</a></nav>
  <article>
    <h1>Title</h1>
    <p>Hello <b>world</b>, grüße 😀. See <a href="/docs">the docs</a>.</p>
  </article>
  <footer>© somebody</footer>
</body>
</html>`

func convert(t *testing.T, opts ...bridge.ConvertOption) (string, error) {
	t.Helper()

	s, err := bridge.NewSession(New(), bridge.WithCapacity(3))
	require.NoError(t, err)
	defer s.Close()

	var out strings.Builder
	err = s.Convert(context.Background(), strings.NewReader(page), &out, opts...)
	return out.String(), err
}

func TestConvert(t *testing.T) {
	t.Parallel()

	out, err := convert(t, bridge.WithFrom("html"), bridge.WithTo("gfm"))
	require.NoError(t, err)
	assert.Contains(t, out, "# Title")
	assert.Contains(t, out, "**world**")
	assert.Contains(t, out, "grüße 😀")
	assert.Contains(t, out, "Home")
}

func TestConvertDefaults(t *testing.T) {
	t.Parallel()

	out, err := convert(t)
	require.NoError(t, err)
	assert.Contains(t, out, "# Title")
}

func TestConvertSettings(t *testing.T) {
	t.Parallel()

	settings := "selector: article\nstrip: [footer]\ndomain: https://example.com\n"
	out, err := convert(t, bridge.WithFrom("html"), bridge.WithTo("markdown"), bridge.WithSettings(settings))
	require.NoError(t, err)
	assert.Contains(t, out, "# Title")
	assert.Contains(t, out, "https://example.com/docs")
	assert.NotContains(t, out, "Home")
	assert.NotContains(t, out, "somebody")

	// JSON is valid YAML.
	out, err = convert(t, bridge.WithSettings(`{"strip": ["nav", "footer"]}`))
	require.NoError(t, err)
	assert.NotContains(t, out, "Home")
	assert.Contains(t, out, "**world**")
}

func TestConvertErrors(t *testing.T) {
	t.Parallel()

	for _, tab := range []struct {
		name string
		opts []bridge.ConvertOption
		msg  string
	}{
		{"reader", []bridge.ConvertOption{bridge.WithFrom("docx")}, "unknown reader format: docx"},
		{"writer", []bridge.ConvertOption{bridge.WithTo("pdf")}, "unknown writer format: pdf"},
		{"settings", []bridge.ConvertOption{bridge.WithSettings("strip: [")}, "invalid settings"},
		{"selector", []bridge.ConvertOption{bridge.WithSettings("selector: table")}, "selector matched nothing: table"},
	} {
		tab := tab
		t.Run(tab.name, func(t *testing.T) {
			t.Parallel()

			_, err := convert(t, tab.opts...)
			var convErr *bridge.ConversionError
			require.ErrorAs(t, err, &convErr)
			assert.Contains(t, convErr.Message, tab.msg)
		})
	}
}

func TestPushChunks(t *testing.T) {
	t.Parallel()

	var chunks []string
	push := func(p []byte) error {
		chunks = append(chunks, string(p))
		return nil
	}
	require.NoError(t, pushChunks(context.Background(), []byte("abcdefg"), 3, push))
	assert.Equal(t, []string{"abc", "def", "g"}, chunks)

	cause := errors.New("stop")
	err := pushChunks(context.Background(), []byte("abcdefg"), 3, func([]byte) error { return cause })
	require.ErrorIs(t, err, cause)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, pushChunks(ctx, []byte("abc"), 1, push), context.Canceled)
}
