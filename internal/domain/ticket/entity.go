package ticket

import (
	"encoding/json"
	"fmt"
)

// EntityKind names one of the collections held by the console's entity store.
type EntityKind string

const (
	KindTicket   EntityKind = "ticket"
	KindLineItem EntityKind = "line_item"
)

func (k EntityKind) String() string {
	return string(k)
}

func (k EntityKind) IsValid() bool {
	return k == KindTicket || k == KindLineItem
}

// Entity is a record the entity store can key, index and merge.
//
// Entities are values: MergeJSON never mutates the receiver and returns a
// fresh copy instead, so a pointer handed out by the store stays stable.
type Entity interface {
	EntityKind() EntityKind
	EntityID() string
	// ParentID returns the owning ticket id, or "" for top-level entities.
	ParentID() string
	// MergeJSON overlays the fields present in patch onto a copy of the
	// entity. Absent fields keep their current values.
	MergeJSON(patch []byte) (Entity, error)
}

// DecodeEntity decodes a full row of the given kind.
func DecodeEntity(kind EntityKind, data []byte) (Entity, error) {
	switch kind {
	case KindTicket:
		var t Ticket
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("decode ticket: %w", err)
		}
		if t.ID == "" {
			return nil, fmt.Errorf("decode ticket: missing id")
		}
		return &t, nil
	case KindLineItem:
		var li LineItem
		if err := json.Unmarshal(data, &li); err != nil {
			return nil, fmt.Errorf("decode line item: %w", err)
		}
		if li.ID == "" {
			return nil, fmt.Errorf("decode line item: missing id")
		}
		li.Normalize()
		return &li, nil
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}

// mergeOnto unmarshals patch into dst and rejects patches that would change
// the entity's identity.
func mergeOnto(dst Entity, id string, patch []byte) error {
	if err := json.Unmarshal(patch, dst); err != nil {
		return fmt.Errorf("merge %s %s: %w", dst.EntityKind(), id, err)
	}
	if dst.EntityID() != id {
		return fmt.Errorf("merge %s %s: patch changes id to %q", dst.EntityKind(), id, dst.EntityID())
	}
	return nil
}
