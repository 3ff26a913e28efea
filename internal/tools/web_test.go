package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	cases := []struct {
		url string
		ok  bool
	}{
		{"https://example.com/page", true},
		{"http://example.com", true},
		{"ftp://example.com", false},
		{"file:///etc/passwd", false},
		{"https://", false},
	}
	for _, c := range cases {
		err := validateURL(c.url)
		if (err == nil) != c.ok {
			t.Errorf("validateURL(%q) err=%v, want ok=%v", c.url, err, c.ok)
		}
	}
}

func TestWebSearch_RequiresAPIKey(t *testing.T) {
	tool := NewWebSearchTool("", 5)
	out, err := tool.Execute(context.Background(), map[string]any{"query": "golang"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "Error: BRAVE_API_KEY not configured" {
		t.Errorf("output = %q", out)
	}
}

func TestWebFetch_ExtractsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!doctype html><html><head><title>Test Page</title></head>
			<body><article><h1>Heading</h1><p>Some interesting paragraph content
			that is long enough for readability to keep it around in the output
			when extracting the main article body from the page.</p></article></body></html>`))
	}))
	defer srv.Close()

	tool := NewWebFetchTool(50000)
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("result not JSON: %v\n%s", err, out)
	}
	if result["status"] != float64(200) {
		t.Errorf("status = %v", result["status"])
	}
	text, _ := result["text"].(string)
	if !strings.Contains(text, "interesting paragraph") {
		t.Errorf("text = %q, want article content", text)
	}
	if result["truncated"] != false {
		t.Errorf("truncated = %v", result["truncated"])
	}
}

func TestWebFetch_TruncatesLongContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 2000)))
	}))
	defer srv.Close()

	tool := NewWebFetchTool(500)
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if result["truncated"] != true {
		t.Errorf("truncated = %v, want true", result["truncated"])
	}
	if result["length"] != float64(500) {
		t.Errorf("length = %v, want 500", result["length"])
	}
}

func TestWebFetch_RejectsBadScheme(t *testing.T) {
	tool := NewWebFetchTool(1000)
	out, err := tool.Execute(context.Background(), map[string]any{"url": "ftp://example.com/file"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "URL validation failed") {
		t.Errorf("output = %q", out)
	}
}

func TestHTMLToMarkdown(t *testing.T) {
	html := `<h2>Title</h2><p>Read <a href="https://example.com">the docs</a> first.</p>
		<ul><li>one</li><li>two</li></ul>`
	md := htmlToMarkdown(html)

	if !strings.Contains(md, "## Title") {
		t.Errorf("missing heading: %q", md)
	}
	if !strings.Contains(md, "[the docs](https://example.com)") {
		t.Errorf("missing link: %q", md)
	}
	if !strings.Contains(md, "- one") || !strings.Contains(md, "- two") {
		t.Errorf("missing list items: %q", md)
	}
}

func TestStripHTMLTags(t *testing.T) {
	html := `<script>evil()</script><style>.x{}</style><p>keep   this</p>`
	got := stripHTMLTags(html)
	if strings.Contains(got, "evil") || strings.Contains(got, ".x{}") {
		t.Errorf("script/style leaked: %q", got)
	}
	if !strings.Contains(got, "keep this") {
		t.Errorf("content lost: %q", got)
	}
}
