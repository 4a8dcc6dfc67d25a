package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginCheckerAllowAll(t *testing.T) {
	checker := newOriginChecker(nil, true, nil)

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.True(t, checker(req))
}

func TestOriginCheckerExactAndWildcardMatch(t *testing.T) {
	checker := newOriginChecker([]string{"http://localhost:*", "https://app.example.com"}, false, nil)

	tests := []struct {
		origin   string
		expected bool
	}{
		{"http://localhost:3000", true},
		{"https://app.example.com", true},
		{"http://localhost:8080", true},
		{"https://evil.example.com", false},
		{"http://evil.com:3000", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/ws", nil)
		req.Header.Set("Origin", tt.origin)
		assert.Equal(t, tt.expected, checker(req), "origin %s", tt.origin)
	}
}

func TestOriginCheckerEmptyOriginOnlyFromLocalhost(t *testing.T) {
	checker := newOriginChecker([]string{"https://app.example.com"}, false, nil)

	local := httptest.NewRequest("GET", "/ws", nil)
	local.RemoteAddr = "127.0.0.1:54321"
	assert.True(t, checker(local))

	remote := httptest.NewRequest("GET", "/ws", nil)
	remote.RemoteAddr = "203.0.113.5:54321"
	assert.False(t, checker(remote))
}
