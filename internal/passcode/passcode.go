// Package passcode verifies shared access codes against a fixed table of
// SHA-256 digests. Plaintext codes never appear in configuration or source.
package passcode

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a code's digest matches no entry.
	ErrNotFound = errors.New("passcode not found")
	// ErrEmpty is returned for blank input.
	ErrEmpty = errors.New("passcode is empty")
)

// Entry binds a digest to the label shown for sessions unlocked with it.
// Labels are display names only; every entry grants the same access.
type Entry struct {
	Hash  string
	Label string
}

// Table is an immutable digest -> label lookup.
type Table struct {
	labels map[string]string
}

// DefaultEntries returns the built-in partner codes.
func DefaultEntries() []Entry {
	return []Entry{
		{Hash: "c012711a8cd078087d28ed1987e8201e79c9b8615064afb4a6e9e482f141eb68", Label: "Sócio A"},
		{Hash: "91bcc18f0dfaae07f602daabdcb35b52e74889f619384315a20993372c9c7787", Label: "Sócio B"},
		{Hash: "29e3354224abeafb651599f0163838b34635adaf7772ef653dc954c62eb51a70", Label: "Sócio C"},
	}
}

// NewTable validates entries and freezes them into a Table.
func NewTable(entries []Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, errors.New("passcode table is empty")
	}
	labels := make(map[string]string, len(entries))
	for i, entry := range entries {
		hash := strings.TrimSpace(entry.Hash)
		if !isDigest(hash) {
			return nil, fmt.Errorf("entry %d: hash must be 64 lowercase hex characters", i)
		}
		label := strings.TrimSpace(entry.Label)
		if label == "" {
			return nil, fmt.Errorf("entry %d: label is required", i)
		}
		if _, exists := labels[hash]; exists {
			return nil, fmt.Errorf("entry %d: duplicate hash %s", i, hash)
		}
		labels[hash] = label
	}
	return &Table{labels: labels}, nil
}

// ParseEntries reads "hash=label" pairs separated by ";".
func ParseEntries(raw string) ([]Entry, error) {
	var entries []Entry
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		hash, label, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid passcode entry %q: expected hash=label", part)
		}
		entries = append(entries, Entry{Hash: strings.TrimSpace(hash), Label: strings.TrimSpace(label)})
	}
	if len(entries) == 0 {
		return nil, errors.New("no passcode entries")
	}
	return entries, nil
}

// Hash returns the lowercase hex SHA-256 of the trimmed secret.
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(sum[:])
}

// Verify returns the label bound to secret. Leading and trailing
// whitespace is ignored; matching is otherwise exact.
func (t *Table) Verify(secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrEmpty
	}
	label, ok := t.labels[Hash(secret)]
	if !ok {
		return "", ErrNotFound
	}
	return label, nil
}

// Len reports the number of entries.
func (t *Table) Len() int {
	return len(t.labels)
}

func isDigest(value string) bool {
	if len(value) != sha256.Size*2 {
		return false
	}
	for _, r := range value {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
