package gateway

import (
	"strings"
	"testing"
)

func TestRedirectFormHTML(t *testing.T) {
	form := &RedirectForm{
		URL:    "https://bank.example/3dgate",
		Method: "POST",
		Fields: map[string]string{
			"clientid": "100",
			"amount":   "10050",
			"okUrl":    "https://merchant.example/ok?a=1&b=2",
		},
	}

	out := form.HTML()

	if !strings.Contains(out, `action="https://bank.example/3dgate"`) {
		t.Error("missing form action")
	}
	if !strings.Contains(out, `method="POST"`) {
		t.Error("missing form method")
	}
	if !strings.Contains(out, `name="clientid" value="100"`) {
		t.Error("missing clientid field")
	}
	if !strings.Contains(out, "document.threeDForm.submit()") {
		t.Error("missing auto-submit")
	}
	// Query separators in field values must be entity-escaped.
	if !strings.Contains(out, "a=1&amp;b=2") {
		t.Error("field value not HTML-escaped")
	}

	// Sorted field order keeps the rendering stable.
	if strings.Index(out, `name="amount"`) > strings.Index(out, `name="clientid"`) {
		t.Error("fields not emitted in sorted order")
	}
}

func TestRedirectFormHTML_DefaultMethod(t *testing.T) {
	form := &RedirectForm{URL: "https://bank.example/3dgate", Fields: map[string]string{}}
	if !strings.Contains(form.HTML(), `method="POST"`) {
		t.Error("empty method must default to POST")
	}
}

func TestRedirectFormHTML_EscapesMarkup(t *testing.T) {
	form := &RedirectForm{
		URL:    "https://bank.example/3dgate",
		Method: "POST",
		Fields: map[string]string{"evil": `"><script>alert(1)</script>`},
	}
	out := form.HTML()
	if strings.Contains(out, "<script>") {
		t.Error("markup in field values must be escaped")
	}
}
