// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package net normalizes the network endpoints sosync is configured with.
package net

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// DefaultSocketPath is the Socket.IO mount point used when none is configured.
const DefaultSocketPath = "/socket.io/"

var errEmptyHost = errors.New("host is empty")

// Endpoint is a parsed real-time server address.
type Endpoint struct {
	Secure bool
	Host   string // lower-case ASCII host or canonical IP, without brackets
	Port   string
}

// ParseEndpoint accepts "host[:port]" or an http(s)/ws(s) URL. Any path,
// query or fragment on a URL is ignored; userinfo is rejected.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, errEmptyHost
	}
	var ep Endpoint
	if scheme, rest, ok := strings.Cut(raw, "://"); ok {
		switch strings.ToLower(scheme) {
		case "http", "ws":
		case "https", "wss":
			ep.Secure = true
		default:
			return Endpoint{}, fmt.Errorf("unsupported scheme %q", scheme)
		}
		raw = rest
	}
	if i := strings.IndexAny(raw, "/?#"); i >= 0 {
		raw = raw[:i]
	}
	u, err := url.Parse("http://" + raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.User != nil {
		return Endpoint{}, fmt.Errorf("endpoint must not carry credentials")
	}
	host, err := normalizeHost(u.Hostname())
	if err != nil {
		return Endpoint{}, err
	}
	ep.Host, ep.Port = host, u.Port()
	return ep, nil
}

func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", errEmptyHost
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String(), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	return strings.ToLower(ascii), nil
}

// SocketURL returns the Engine.IO v4 WebSocket URL under path.
func (e Endpoint) SocketURL(path string) string {
	if path == "" {
		path = DefaultSocketPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	scheme := "ws"
	if e.Secure {
		scheme = "wss"
	}
	host := e.Host
	if e.Port != "" {
		host = net.JoinHostPort(e.Host, e.Port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	u := url.URL{Scheme: scheme, Host: host, Path: path, RawQuery: "EIO=4&transport=websocket"}
	return u.String()
}

// SocketURL parses endpoint and builds its WebSocket URL.
func SocketURL(endpoint, path string) (string, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return "", fmt.Errorf("realtime endpoint: %w", err)
	}
	return ep.SocketURL(path), nil
}

// SanitizeURL drops credentials and the query string for logging.
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url-redacted"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}
