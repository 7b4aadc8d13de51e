package httpclient

import (
	"net"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestValidateURLSchemes(t *testing.T) {
	c := New(10*time.Second, Options{})

	cases := []struct {
		rawURL  string
		blocked bool
	}{
		{"https://openrouter.ai/api/v1/chat/completions", false},
		{"http://example.com/path", false},
		{"ftp://example.com/file", true},
		{"file:///etc/passwd", true},
		{"gopher://example.com", true},
	}

	for _, tc := range cases {
		u, err := url.Parse(tc.rawURL)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.rawURL, err)
		}
		err = c.validateURL(u)
		if tc.blocked && err == nil {
			t.Errorf("expected %q to be blocked", tc.rawURL)
		}
		if !tc.blocked && err != nil {
			t.Errorf("expected %q to be allowed, got %v", tc.rawURL, err)
		}
	}
}

func TestValidateURLBlocksLocalAndPrivate(t *testing.T) {
	c := New(10*time.Second, Options{})

	blocked := []string{
		"http://localhost/admin",
		"http://127.0.0.1:8080/",
		"http://10.0.0.5/",
		"http://192.168.1.1/",
		"http://169.254.169.254/latest/meta-data/",
		"http://evil.com@localhost/",
	}

	for _, raw := range blocked {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if err := c.validateURL(u); err == nil {
			t.Errorf("expected %q to be blocked", raw)
		}
	}
}

func TestAllowPrivateIPOption(t *testing.T) {
	c := New(10*time.Second, Options{AllowPrivateIP: true})

	u, _ := url.Parse("http://127.0.0.1:9999/")
	if err := c.validateURL(u); err != nil {
		t.Errorf("expected localhost to be allowed with AllowPrivateIP, got %v", err)
	}
}

func TestIsPrivateIP(t *testing.T) {
	private := []string{"10.1.2.3", "172.16.0.1", "192.168.0.10", "127.0.0.1", "169.254.1.1", "::1", "fe80::1", "fd00::1"}
	for _, s := range private {
		if !isPrivateIP(net.ParseIP(s)) {
			t.Errorf("expected %s to be private", s)
		}
	}

	public := []string{"8.8.8.8", "1.1.1.1", "2607:f8b0::1"}
	for _, s := range public {
		if isPrivateIP(net.ParseIP(s)) {
			t.Errorf("expected %s to be public", s)
		}
	}
}

func TestDoBlocksBeforeDialing(t *testing.T) {
	c := New(10*time.Second, Options{})

	req, err := http.NewRequest("GET", "http://127.0.0.1:1/", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Do(req); err == nil {
		t.Fatal("expected SSRF validation error")
	}
}

func TestWrapClientDisablesBlocking(t *testing.T) {
	c := WrapClient(&http.Client{})
	u, _ := url.Parse("http://127.0.0.1:8080/")
	if err := c.validateURL(u); err != nil {
		t.Errorf("wrapped client should not block localhost: %v", err)
	}
}
