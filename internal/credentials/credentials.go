// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package credentials caches the backend auth token and user profile.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ManuGH/sosync/internal/kv"
)

const (
	tokenKey   = "auth/token"
	profileKey = "auth/user"
)

// Profile is the authenticated user as returned by /auth/users/me/.
type Profile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Store persists credentials in kv and keeps a read-through copy in memory.
type Store struct {
	kv kv.Store

	mu      sync.RWMutex
	loaded  bool
	token   string
	profile *Profile
}

func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// SaveToken persists a freshly issued token. A new token invalidates the
// cached profile.
func (s *Store) SaveToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("credentials: empty token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Put(ctx, tokenKey, []byte(token)); err != nil {
		return fmt.Errorf("credentials: save token: %w", err)
	}
	if err := s.kv.Delete(ctx, profileKey); err != nil {
		return fmt.Errorf("credentials: reset profile: %w", err)
	}
	s.token, s.profile, s.loaded = token, nil, true
	return nil
}

// SaveProfile persists the user profile.
func (s *Store) SaveProfile(ctx context.Context, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := kv.PutJSON(ctx, s.kv, profileKey, p); err != nil {
		return fmt.Errorf("credentials: save profile: %w", err)
	}
	s.profile = &p
	return nil
}

// Token returns the cached token, or "" when not authenticated.
func (s *Store) Token(ctx context.Context) (string, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

// Profile returns the cached profile, or nil when none is stored.
func (s *Store) Profile(ctx context.Context) (*Profile, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil, nil
	}
	p := *s.profile
	return &p, nil
}

// Authenticated reports whether a token is present.
func (s *Store) Authenticated(ctx context.Context) bool {
	tok, err := s.Token(ctx)
	return err == nil && tok != ""
}

// Clear removes token and profile. It is called on logout and whenever the
// backend answers 401.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token, s.profile, s.loaded = "", nil, true
	return errors.Join(
		s.kv.Delete(ctx, tokenKey),
		s.kv.Delete(ctx, profileKey),
	)
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	raw, err := s.kv.Get(ctx, tokenKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return fmt.Errorf("credentials: load token: %w", err)
	default:
		s.token = string(raw)
	}

	var p Profile
	err = kv.GetJSON(ctx, s.kv, profileKey, &p)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return fmt.Errorf("credentials: load profile: %w", err)
	default:
		s.profile = &p
	}
	s.loaded = true
	return nil
}
