package mailing

import (
	"fmt"
	"html"
	"regexp"
	"sync"

	"github.com/osteele/liquid"

	"github.com/flowmail/dashboard/internal/domain"
)

var bodyOpenTag = regexp.MustCompile(`(?i)<body[^>]*>`)

// maxCachedTemplates bounds the parsed-template cache. A send renders one
// template many times, so a small cache covers the concurrent sends.
const maxCachedTemplates = 64

// Renderer produces the final HTML for one campaign and recipient.
type Renderer struct {
	engine *liquid.Engine

	mu    sync.Mutex
	cache map[string]*liquid.Template // template source -> parsed
}

// NewRenderer creates a renderer with the Liquid engine configured.
func NewRenderer() *Renderer {
	engine := liquid.NewEngine()

	// Default value filter: {{ name | default: "Friend" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	return &Renderer{engine: engine, cache: make(map[string]*liquid.Template)}
}

// ValidateTemplate checks that content parses under the given syntax.
// Merge-tag templates always validate.
func (r *Renderer) ValidateTemplate(syntax domain.TemplateSyntax, content string) error {
	if syntax != domain.SyntaxLiquid {
		return nil
	}
	if _, err := r.engine.ParseString(content); err != nil {
		return fmt.Errorf("invalid liquid template: %w", err)
	}
	return nil
}

// Render returns the campaign HTML for one recipient, with the preview
// text injected as a hidden preheader when set.
func (r *Renderer) Render(c *domain.Campaign, rcpt Recipient) (string, error) {
	var body string
	switch c.TemplateSyntax {
	case domain.SyntaxLiquid:
		tpl, err := r.parse(c.HTMLContent)
		if err != nil {
			return "", fmt.Errorf("invalid liquid template: %w", err)
		}
		d := rcpt.withDefaults()
		out, serr := tpl.RenderString(liquid.Bindings{
			"name":  d.Name,
			"email": d.Email,
			"tier":  d.Tier,
		})
		if serr != nil {
			return "", fmt.Errorf("render liquid template: %w", serr)
		}
		body = out
	default:
		body = RenderMergeTags(c.HTMLContent, rcpt)
	}
	return InjectPreheader(body, c.PreviewText), nil
}

// parse returns the cached template for content, parsing on a miss. The
// cache is dropped wholesale when it reaches maxCachedTemplates.
func (r *Renderer) parse(content string) (*liquid.Template, error) {
	r.mu.Lock()
	tpl, ok := r.cache[content]
	r.mu.Unlock()
	if ok {
		return tpl, nil
	}

	tpl, err := r.engine.ParseString(content)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if len(r.cache) >= maxCachedTemplates {
		clear(r.cache)
	}
	r.cache[content] = tpl
	r.mu.Unlock()
	return tpl, nil
}

// InjectPreheader places a hidden preview-text block at the top of the
// email body. Inbox clients show it next to the subject line.
func InjectPreheader(body, preview string) string {
	if preview == "" {
		return body
	}
	block := `<div style="display:none;font-size:1px;line-height:1px;max-height:0;max-width:0;opacity:0;overflow:hidden;mso-hide:all;">` +
		html.EscapeString(preview) + `</div>`
	if loc := bodyOpenTag.FindStringIndex(body); loc != nil {
		return body[:loc[1]] + block + body[loc[1]:]
	}
	return block + body
}
