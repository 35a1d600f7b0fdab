// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    Endpoint
		wantErr bool
	}{
		{in: "Example.COM:8080", want: Endpoint{Host: "example.com", Port: "8080"}},
		{in: "https://127.0.0.1:9090/x?y=1", want: Endpoint{Secure: true, Host: "127.0.0.1", Port: "9090"}},
		{in: "wss://rt.example.com", want: Endpoint{Secure: true, Host: "rt.example.com"}},
		{in: "[::1]:8001", want: Endpoint{Host: "::1", Port: "8001"}},
		{in: "bücher.example", want: Endpoint{Host: "xn--bcher-kva.example"}},
		{in: "", wantErr: true},
		{in: "http://", wantErr: true},
		{in: "ftp://host", wantErr: true},
		{in: "http://user:pw@host:1", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseEndpoint(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		endpoint, path, want string
	}{
		{"192.168.1.20:8001", "", "ws://192.168.1.20:8001/socket.io/?EIO=4&transport=websocket"},
		{"https://rt.example.com", "/rt", "wss://rt.example.com/rt/?EIO=4&transport=websocket"},
		{"http://localhost:8001/ignored", "socket.io", "ws://localhost:8001/socket.io/?EIO=4&transport=websocket"},
		{"[::1]:8001", "", "ws://[::1]:8001/socket.io/?EIO=4&transport=websocket"},
	}
	for _, tt := range tests {
		got, err := SocketURL(tt.endpoint, tt.path)
		require.NoError(t, err, tt.endpoint)
		assert.Equal(t, tt.want, got, tt.endpoint)
	}
	_, err := SocketURL(" ", "")
	assert.Error(t, err)
}

func TestSanitizeURL(t *testing.T) {
	assert.Equal(t, "ws://h:1/socket.io/", SanitizeURL("ws://u:p@h:1/socket.io/?EIO=4&token=x"))
}
