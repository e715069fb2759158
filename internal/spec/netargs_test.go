package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsLocalBaseURL(t *testing.T) {
	local := []string{
		"http://localhost:8080",
		"http://127.0.0.1",
		"https://0.0.0.0:9000",
		"http://LOCALHOST:8080",
	}
	for _, raw := range local {
		assert.True(t, IsLocalBaseURL(raw), raw)
	}

	remote := []string{
		"https://api.tracklab.ai",
		"http://tracklab.internal:8080",
		"https://10.0.0.5",
	}
	for _, raw := range remote {
		assert.False(t, IsLocalBaseURL(raw), raw)
	}
}

func TestLocalNetworkArgs(t *testing.T) {
	tests := []struct {
		name    string
		goos    string
		baseURL string
		want    map[string]string
	}{
		{
			name:    "linux with local service",
			goos:    "linux",
			baseURL: "http://localhost:8080",
			want: map[string]string{
				"network":  "host",
				"add-host": "host.docker.internal:host-gateway",
			},
		},
		{
			name:    "windows with local service",
			goos:    "windows",
			baseURL: "http://localhost:8080",
			want:    map[string]string{"net": "host"},
		},
		{
			name:    "darwin with local service",
			goos:    "darwin",
			baseURL: "http://127.0.0.1:8080",
			want:    map[string]string{"network": "host"},
		},
		{
			name:    "linux with hosted service",
			goos:    "linux",
			baseURL: "https://api.tracklab.ai",
			want:    map[string]string{},
		},
		{
			name:    "windows with hosted service",
			goos:    "windows",
			baseURL: "https://api.tracklab.ai",
			want:    map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LocalNetworkArgs(tt.goos, tt.baseURL))
		})
	}
}
