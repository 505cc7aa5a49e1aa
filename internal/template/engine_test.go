package template

import (
	"strings"
	"testing"

	"github.com/ignite/campaigner/internal/domain"
)

func TestRenderContactVars(t *testing.T) {
	e := NewEngine()
	contact := &domain.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}

	out, err := e.Render("", "Hi {{ first_name }}, news for {{ email | email_domain }}", ContactVars(contact))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hi Ada, news for example.com" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRenderDefaultFilter(t *testing.T) {
	e := NewEngine()
	contact := &domain.Contact{Email: "anon@example.com"}

	out, err := e.Render("", `Hi {{ first_name | default: "Friend" }}`, ContactVars(contact))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hi Friend" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRenderBrokenTemplateFallsBack(t *testing.T) {
	e := NewEngine()
	src := "Hi {% if %} broken"

	out, err := e.Render("", src, nil)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if out != src {
		t.Fatalf("expected raw template on failure, got %q", out)
	}
}

func TestRenderCacheReuse(t *testing.T) {
	e := NewEngine()
	if _, err := e.Render("k1", "Hello {{ first_name }}", map[string]interface{}{"first_name": "A"}); err != nil {
		t.Fatal(err)
	}
	out, err := e.Render("k1", "ignored source when cached", map[string]interface{}{"first_name": "B"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Hello B" {
		t.Fatalf("cache not used: %q", out)
	}
}

func TestInjectOpenPixel(t *testing.T) {
	withBody := "<html><body><p>hi</p></body></html>"
	out := InjectOpenPixel(withBody, "https://t.example.com/track/open?c=1&u=2")
	if !strings.Contains(out, `<img src="https://t.example.com/track/open?c=1&u=2"`) {
		t.Fatalf("pixel missing: %q", out)
	}
	if !strings.HasSuffix(out, "</body></html>") {
		t.Fatalf("pixel not placed before closing body: %q", out)
	}

	noBody := "<p>hi</p>"
	out = InjectOpenPixel(noBody, "https://t.example.com/p")
	if !strings.HasPrefix(out, noBody) || !strings.Contains(out, "<img") {
		t.Fatalf("pixel not appended: %q", out)
	}
}
