package server

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.1.24")

	if got := clientIP(req, false); got != "10.0.0.5" {
		t.Fatalf("untrusted proxy headers must be ignored, got %s", got)
	}
	if got := clientIP(req, true); got != "203.0.113.1" {
		t.Fatalf("expected first public xff address, got %s", got)
	}

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("CloudFront-Viewer-Address", "198.51.100.7:44321")
	if got := clientIP(req, true); got != "198.51.100.7" {
		t.Fatalf("expected cloudfront viewer address, got %s", got)
	}

	req.Header.Del("CloudFront-Viewer-Address")
	if got := clientIP(req, true); got != "10.0.0.5" {
		t.Fatalf("expected remote addr fallback, got %s", got)
	}
}
