// Package htmlmd implements a native conversion engine from HTML to Markdown.
//
// The engine reads its whole input through pull, optionally narrows it down to a content root,
// converts it with html-to-markdown and pushes the result back in buffer sized chunks.
package htmlmd

import (
	"context"
	"fmt"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/SaveTheRbtz/pandoc-bridge-go/env"
)

const (
	// FormatHTML is the only reader format.
	FormatHTML = "html"
)

// writers lists the accepted target formats.  All of them produce CommonMark with GFM extensions.
var writers = map[string]bool{
	"markdown":   true,
	"gfm":        true,
	"commonmark": true,
}

// Settings is the YAML (or JSON) settings blob understood by the engine.
type Settings struct {
	// Selector is a CSS selector of the content root.  The first match is converted.
	Selector string `yaml:"selector"`
	// Strip lists CSS selectors removed from the document before conversion.
	Strip []string `yaml:"strip"`
	// Domain is used to turn relative links into absolute ones.
	Domain string `yaml:"domain"`
}

type Engine struct {
	logger *zap.Logger
}

var _ env.Engine = (*Engine)(nil)

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func New(opts ...Option) *Engine {
	e := &Engine{logger: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) Init() error { return nil }

func (e *Engine) Exit() error { return nil }

func (e *Engine) Convert(ctx context.Context, req env.Request, pull env.PullFunc, push env.PushFunc) (string, error) {
	if from, ok := env.CString(req.From); ok && from != FormatHTML {
		return fmt.Sprintf("unknown reader format: %s", from), nil
	}
	if to, ok := env.CString(req.To); ok && !writers[to] {
		return fmt.Sprintf("unknown writer format: %s", to), nil
	}

	var settings Settings
	if s, ok := env.CString(req.Settings); ok && s != "" {
		if err := yaml.Unmarshal([]byte(s), &settings); err != nil {
			return fmt.Sprintf("invalid settings: %v", err), nil
		}
	}

	// Parse errors only come from the reader, i.e. from pull.
	doc, err := goquery.NewDocumentFromReader(env.NewPullReader(pull, req.BufferSize))
	if err != nil {
		return "", err
	}

	html, msg := extract(doc, &settings)
	if msg != "" {
		return msg, nil
	}

	var opts []converter.ConvertOptionFunc
	if settings.Domain != "" {
		opts = append(opts, converter.WithDomain(settings.Domain))
	}
	markdown, err := htmltomarkdown.ConvertString(html, opts...)
	if err != nil {
		return fmt.Sprintf("failed to convert html: %v", err), nil
	}
	e.logger.Debug("converted document",
		zap.Int("html", len(html)), zap.Int("markdown", len(markdown)), zap.String("selector", settings.Selector))

	return "", pushChunks(ctx, []byte(markdown), req.BufferSize, push)
}

// extract applies the settings to doc and returns the HTML to convert.
// A non-empty message reports settings that do not fit the document.
func extract(doc *goquery.Document, settings *Settings) (html string, msg string) {
	for _, sel := range settings.Strip {
		doc.Find(sel).Remove()
	}

	if settings.Selector == "" {
		out, err := doc.Html()
		if err != nil {
			return "", fmt.Sprintf("failed to render html: %v", err)
		}
		return out, ""
	}

	root := doc.Find(settings.Selector).First()
	if root.Length() == 0 {
		return "", fmt.Sprintf("selector matched nothing: %s", settings.Selector)
	}
	out, err := goquery.OuterHtml(root)
	if err != nil {
		return "", fmt.Sprintf("failed to render html: %v", err)
	}
	return out, ""
}

// pushChunks delivers p in chunks of at most size bytes.  Chunks are cut at byte offsets,
// not at character boundaries.
func pushChunks(ctx context.Context, p []byte, size int, push env.PushFunc) error {
	if size <= 0 {
		size = len(p)
	}
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := size
		if n > len(p) {
			n = len(p)
		}
		if err := push(p[:n]); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
