// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package contacts manages the device's emergency-contact list.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ManuGH/sosync/internal/domain/sos/model"
	"github.com/ManuGH/sosync/internal/kv"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

const storeKey = "contacts"

var (
	// ErrDuplicateContact is a DataConflict: the phone number is already listed.
	ErrDuplicateContact = fmt.Errorf("%w: contact already in emergency contacts", model.ErrDataConflict)
	ErrContactNotFound  = errors.New("contact not found")
	ErrInvalidContact   = errors.New("invalid contact")
)

// Book is the persisted contact list.
type Book struct {
	store kv.Store
	now   func() time.Time

	mu sync.Mutex
}

func New(store kv.Store) *Book {
	return &Book{store: store, now: time.Now}
}

// NormalizePhone folds width variants and keeps digits plus a leading '+',
// so "+91 98765-43210" and "+919876543210" compare equal.
func NormalizePhone(s string) string {
	s = norm.NFKC.String(strings.TrimSpace(s))
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r) && r < unicode.MaxASCII:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Add appends a contact. A phone number already present yields
// ErrDuplicateContact and leaves the list unchanged.
func (b *Book) Add(ctx context.Context, name, phone, email string) (model.EmergencyContact, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	normalized := NormalizePhone(phone)
	if name == "" || strings.TrimPrefix(normalized, "+") == "" {
		return model.EmergencyContact{}, fmt.Errorf("%w: name and phone number are required", ErrInvalidContact)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list, err := b.load(ctx)
	if err != nil {
		return model.EmergencyContact{}, err
	}
	for _, c := range list {
		if NormalizePhone(c.PhoneNumber) == normalized {
			return model.EmergencyContact{}, ErrDuplicateContact
		}
	}

	c := model.EmergencyContact{
		ID:          uuid.NewString(),
		Name:        name,
		PhoneNumber: normalized,
		Email:       strings.TrimSpace(email),
		AddedAt:     b.now().UTC(),
	}
	list = append(list, c)
	if err := kv.PutJSON(ctx, b.store, storeKey, list); err != nil {
		return model.EmergencyContact{}, fmt.Errorf("contacts: save: %w", err)
	}
	return c, nil
}

// Remove deletes the contact with id.
func (b *Book) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	list, err := b.load(ctx)
	if err != nil {
		return err
	}
	out := list[:0]
	found := false
	for _, c := range list {
		if c.ID == id {
			found = true
			continue
		}
		out = append(out, c)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrContactNotFound, id)
	}
	if err := kv.PutJSON(ctx, b.store, storeKey, out); err != nil {
		return fmt.Errorf("contacts: save: %w", err)
	}
	return nil
}

// List returns contacts in insertion order.
func (b *Book) List(ctx context.Context) ([]model.EmergencyContact, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.load(ctx)
}

// Clear removes every contact.
func (b *Book) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Delete(ctx, storeKey)
}

func (b *Book) load(ctx context.Context) ([]model.EmergencyContact, error) {
	var list []model.EmergencyContact
	err := kv.GetJSON(ctx, b.store, storeKey, &list)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("contacts: load: %w", err)
	}
	return list, nil
}
