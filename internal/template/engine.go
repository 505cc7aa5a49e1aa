// Package template renders campaign subjects and bodies with the Liquid
// template language. Rendering is lax: a broken template falls back to the
// raw source so a send never produces an empty email.
package template

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/campaigner/internal/domain"
)

// Engine wraps a Liquid engine with campaign-specific filters and a parsed
// template cache keyed by caller-supplied strings.
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewEngine creates an engine with the custom filter set registered.
func NewEngine() *Engine {
	e := &Engine{engine: liquid.NewEngine()}
	e.registerFilters()
	return e
}

func (e *Engine) registerFilters() {
	// Fallback value: {{ first_name | default: "Friend" }}
	e.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ name | capitalize }}
	e.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// Truncate with ellipsis: {{ subject | truncate: 50 }}
	e.engine.RegisterFilter("truncate", func(s string, length int) string {
		if len(s) <= length {
			return s
		}
		if length <= 3 {
			return s[:length]
		}
		return s[:length-3] + "..."
	})

	// URL encode: {{ email | urlencode }}
	e.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// HTML escape: {{ user_input | escape }}
	e.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// Extract domain from email: {{ email | email_domain }}
	e.engine.RegisterFilter("email_domain", func(email string) string {
		parts := strings.Split(email, "@")
		if len(parts) == 2 {
			return parts[1]
		}
		return ""
	})
}

// Parse compiles a template string and returns any syntax error.
func (e *Engine) Parse(templateStr string) error {
	_, err := e.engine.ParseString(templateStr)
	return err
}

// Render processes a template with the given variables. An empty cacheKey
// skips the cache. Parse or render failures return the raw template string
// along with the error.
func (e *Engine) Render(cacheKey, templateStr string, vars map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := e.cache.Load(cacheKey); ok {
			out, err := cached.(*liquid.Template).RenderString(vars)
			if err != nil {
				return templateStr, err
			}
			return out, nil
		}
	}

	tpl, err := e.engine.ParseString(templateStr)
	if err != nil {
		return templateStr, err
	}
	if cacheKey != "" {
		e.cache.Store(cacheKey, tpl)
	}

	out, err := tpl.RenderString(vars)
	if err != nil {
		return templateStr, err
	}
	return out, nil
}

// ClearCache drops all parsed templates, for use after template edits.
func (e *Engine) ClearCache() {
	e.cache = sync.Map{}
}

// ContactVars builds the merge variable set for one recipient.
func ContactVars(c *domain.Contact) map[string]interface{} {
	return map[string]interface{}{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"email":      c.Email,
		"tags":       c.Tags,
	}
}

// PlaceholderVars builds sample merge variables for test sends, where no
// real recipient exists.
func PlaceholderVars() map[string]interface{} {
	return map[string]interface{}{
		"first_name": "Test",
		"last_name":  "Recipient",
		"email":      "test@example.com",
		"tags":       []string{"test"},
	}
}

// InjectOpenPixel appends the tracking pixel image just before the closing
// body tag, or at the end of the document when no body tag exists.
func InjectOpenPixel(htmlBody, pixelURL string) string {
	img := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" style="display:none;"/>`, pixelURL)
	lower := strings.ToLower(htmlBody)
	if idx := strings.LastIndex(lower, "</body>"); idx >= 0 {
		return htmlBody[:idx] + img + htmlBody[idx:]
	}
	return htmlBody + img
}
