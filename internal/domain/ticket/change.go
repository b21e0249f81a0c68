package ticket

import (
	"encoding/json"
	"fmt"
)

// Table names a change-feed channel. Each table carries one entity kind.
type Table string

const (
	TableTickets   Table = "tickets"
	TableLineItems Table = "line_items"
)

// Tables lists every table the feed publishes.
var Tables = []Table{TableTickets, TableLineItems}

func (t Table) String() string {
	return string(t)
}

func (t Table) IsValid() bool {
	return t == TableTickets || t == TableLineItems
}

// Kind returns the entity kind stored in the table.
func (t Table) Kind() EntityKind {
	if t == TableTickets {
		return KindTicket
	}
	return KindLineItem
}

// TableFor returns the table that carries entities of kind.
func TableFor(kind EntityKind) Table {
	if kind == KindTicket {
		return TableTickets
	}
	return TableLineItems
}

// ChangeKind is the operation a change event describes.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Row is one raw record image as carried by the feed. Keeping the raw
// document lets an update merge only the fields the publisher sent.
type Row json.RawMessage

// RowHeader holds the fields the reconciler routes on.
type RowHeader struct {
	ID       string `json:"id"`
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
}

// Header decodes the routing fields of the row.
func (r Row) Header() (RowHeader, error) {
	var h RowHeader
	if len(r) == 0 {
		return h, fmt.Errorf("empty row")
	}
	if err := json.Unmarshal(r, &h); err != nil {
		return h, fmt.Errorf("decode row header: %w", err)
	}
	if h.ID == "" {
		return h, fmt.Errorf("row has no id")
	}
	return h, nil
}

// RowOf encodes an entity as a full row.
func RowOf(e Entity) (Row, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", e.EntityKind(), e.EntityID(), err)
	}
	return Row(data), nil
}

// ChangeEvent is a normalized feed notification. The concrete type is one
// of Insert, Update or Delete.
type ChangeEvent interface {
	Table() Table
	Kind() ChangeKind
	isChangeEvent()
}

// Insert announces a new row.
type Insert struct {
	In  Table
	New Row
}

// Update announces a changed row. Old is nil when the publisher did not
// send the previous image.
type Update struct {
	In  Table
	New Row
	Old Row
}

// Delete announces a removed row. Only Old is known.
type Delete struct {
	In  Table
	Old Row
}

func (e Insert) Table() Table     { return e.In }
func (e Insert) Kind() ChangeKind { return ChangeInsert }
func (Insert) isChangeEvent()     {}

func (e Update) Table() Table     { return e.In }
func (e Update) Kind() ChangeKind { return ChangeUpdate }
func (Update) isChangeEvent()     {}

func (e Delete) Table() Table     { return e.In }
func (e Delete) Kind() ChangeKind { return ChangeDelete }
func (Delete) isChangeEvent()     {}

// wireEvent is the JSON envelope published on the feed.
type wireEvent struct {
	Table Table           `json:"table"`
	Kind  ChangeKind      `json:"kind"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// EncodeChangeEvent renders ev as its feed envelope.
func EncodeChangeEvent(ev ChangeEvent) ([]byte, error) {
	w := wireEvent{Table: ev.Table(), Kind: ev.Kind()}
	switch e := ev.(type) {
	case Insert:
		w.New = json.RawMessage(e.New)
	case Update:
		w.New = json.RawMessage(e.New)
		w.Old = json.RawMessage(e.Old)
	case Delete:
		w.Old = json.RawMessage(e.Old)
	}
	return json.Marshal(w)
}

// DecodeChangeEvent parses a feed envelope and checks that the images the
// kind requires are present.
func DecodeChangeEvent(data []byte) (ChangeEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode change event: %w", err)
	}
	if !w.Table.IsValid() {
		return nil, fmt.Errorf("decode change event: unknown table %q", w.Table)
	}

	switch w.Kind {
	case ChangeInsert:
		if isNull(w.New) {
			return nil, fmt.Errorf("decode change event: insert without new row")
		}
		return Insert{In: w.Table, New: Row(w.New)}, nil
	case ChangeUpdate:
		if isNull(w.New) {
			return nil, fmt.Errorf("decode change event: update without new row")
		}
		ev := Update{In: w.Table, New: Row(w.New)}
		if !isNull(w.Old) {
			ev.Old = Row(w.Old)
		}
		return ev, nil
	case ChangeDelete:
		if isNull(w.Old) {
			return nil, fmt.Errorf("decode change event: delete without old row")
		}
		return Delete{In: w.Table, Old: Row(w.Old)}, nil
	default:
		return nil, fmt.Errorf("decode change event: unknown kind %q", w.Kind)
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
