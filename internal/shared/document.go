// Package shared is the remotely persisted collaborative document: one
// global record holding the checked and comments maps, addressed by a
// fixed path and written with merge-upserts.
package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
)

// Path addresses the single shared document
// (workspace collection / workspace / states collection / document).
const Path = "workspaces/synth/states/default"

// Field names of the stored document.
const (
	FieldCheckedMap  = "checkedMap"
	FieldCommentsMap = "commentsMap"
	FieldUpdatedAt   = "updatedAt"
	FieldUpdatedBy   = "updatedBy"
	FieldWriter      = "writer"
)

// ErrUnavailable is returned when no remote backend is configured or
// reachable.
var ErrUnavailable = errors.New("shared state store unavailable")

// Document is a decoded snapshot. A nil map means the field is absent.
type Document struct {
	CheckedMap  map[string]bool   `json:"checkedMap,omitempty"`
	CommentsMap map[string]string `json:"commentsMap,omitempty"`
	UpdatedAt   int64             `json:"updatedAt,omitempty"`
	UpdatedBy   string            `json:"updatedBy,omitempty"`
	Writer      string            `json:"writer,omitempty"`
	Exists      bool              `json:"-"`
}

// Patch names the top-level fields to write. Nil maps and zero scalars
// are left untouched in the stored document.
type Patch struct {
	CheckedMap  map[string]bool
	CommentsMap map[string]string
	UpdatedAt   int64
	UpdatedBy   string
	Writer      string
}

// Subscription is a live change feed.
type Subscription interface {
	Unsubscribe()
}

// Store is the remote collaborator. Subscribe delivers the current
// document (empty if none exists) and then every later change.
// UpsertMerge writes only the patch's fields, creating the document
// when absent.
type Store interface {
	Subscribe(ctx context.Context, onChange func(Document)) (Subscription, error)
	UpsertMerge(ctx context.Context, patch Patch) error
}

// Fields encodes the patch as raw JSON values keyed by field name.
func (p Patch) Fields() (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage, 5)
	if p.CheckedMap != nil {
		raw, err := json.Marshal(p.CheckedMap)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", FieldCheckedMap, err)
		}
		fields[FieldCheckedMap] = raw
	}
	if p.CommentsMap != nil {
		raw, err := json.Marshal(p.CommentsMap)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", FieldCommentsMap, err)
		}
		fields[FieldCommentsMap] = raw
	}
	if p.UpdatedAt != 0 {
		fields[FieldUpdatedAt] = json.RawMessage(strconv.FormatInt(p.UpdatedAt, 10))
	}
	if p.UpdatedBy != "" {
		raw, err := json.Marshal(p.UpdatedBy)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", FieldUpdatedBy, err)
		}
		fields[FieldUpdatedBy] = raw
	}
	if p.Writer != "" {
		raw, err := json.Marshal(p.Writer)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", FieldWriter, err)
		}
		fields[FieldWriter] = raw
	}
	return fields, nil
}

// DecodeFields builds a Document from raw field values. Fields that fail
// to decode are treated as absent.
func DecodeFields(fields map[string]json.RawMessage) Document {
	doc := Document{Exists: len(fields) > 0}
	if raw, ok := fields[FieldCheckedMap]; ok {
		var m map[string]bool
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Printf("shared: ignoring malformed %s: %v", FieldCheckedMap, err)
		} else if m != nil {
			doc.CheckedMap = m
		}
	}
	if raw, ok := fields[FieldCommentsMap]; ok {
		var m map[string]string
		if err := json.Unmarshal(raw, &m); err != nil {
			log.Printf("shared: ignoring malformed %s: %v", FieldCommentsMap, err)
		} else if m != nil {
			doc.CommentsMap = m
		}
	}
	if raw, ok := fields[FieldUpdatedAt]; ok {
		_ = json.Unmarshal(raw, &doc.UpdatedAt)
	}
	if raw, ok := fields[FieldUpdatedBy]; ok {
		_ = json.Unmarshal(raw, &doc.UpdatedBy)
	}
	if raw, ok := fields[FieldWriter]; ok {
		_ = json.Unmarshal(raw, &doc.Writer)
	}
	return doc
}

type subscriptionFunc func()

func (f subscriptionFunc) Unsubscribe() { f() }
