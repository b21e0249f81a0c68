// Package entitystore holds the console's in-memory view of tickets and
// line items. Every exported operation applies completely under one lock
// or not at all, so no reader can observe a half-applied change.
package entitystore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/warehouse-ops/ntconsole/internal/domain/ticket"
)

// Snapshot is the prior state of one entity and, for tickets, its line
// items, captured before an optimistic change so it can be restored.
type Snapshot struct {
	Kind     ticket.EntityKind
	ID       string
	Entity   ticket.Entity
	Children []ticket.Entity
}

// Store keys entities by kind and id and indexes children by parent id.
// Entities handed out are shared and must be treated as read-only.
type Store struct {
	mu       sync.RWMutex
	entities map[ticket.EntityKind]map[string]ticket.Entity
	children map[string]map[string]struct{}
}

func New() *Store {
	return &Store{
		entities: map[ticket.EntityKind]map[string]ticket.Entity{
			ticket.KindTicket:   {},
			ticket.KindLineItem: {},
		},
		children: make(map[string]map[string]struct{}),
	}
}

// Upsert stores e, replacing any entity with the same kind and id.
func (s *Store) Upsert(e ticket.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(e)
}

// UpsertAll stores every entity in one step.
func (s *Store) UpsertAll(es ...ticket.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range es {
		s.put(e)
	}
}

// Insert stores e only when no entity with its id exists and reports
// whether it did.
func (s *Store) Insert(e ticket.Entity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.EntityKind()][e.EntityID()]; ok {
		return false
	}
	s.put(e)
	return true
}

// Merge overlays the fields present in patch onto the stored entity.
// existed is false when there is nothing to merge onto; on error the
// store is unchanged.
func (s *Store) Merge(kind ticket.EntityKind, id string, patch []byte) (before, after ticket.Entity, existed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, existed = s.entities[kind][id]
	if !existed {
		return nil, nil, false, nil
	}
	after, err = before.MergeJSON(patch)
	if err != nil {
		return before, nil, true, err
	}
	s.put(after)
	return before, after, true, nil
}

// MergeCapture is Merge that also returns the entity's prior state, taken
// under the same lock, so a later Restore never reverts a change that
// landed in between.
func (s *Store) MergeCapture(kind ticket.EntityKind, id string, patch []byte) (snap Snapshot, after ticket.Entity, existed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap = s.captureLocked(kind, id)
	if snap.Entity == nil {
		return snap, nil, false, nil
	}
	after, err = snap.Entity.MergeJSON(patch)
	if err != nil {
		return snap, nil, true, err
	}
	s.put(after)
	return snap, after, true, nil
}

// Remove deletes one entity and returns it. Removing a ticket does not
// touch its line items; use RemoveWhere for that.
func (s *Store) Remove(kind ticket.EntityKind, id string) (ticket.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drop(kind, id)
}

// RemoveWhere deletes every line item whose parent is parentID.
func (s *Store) RemoveWhere(parentID string) []ticket.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropChildren(parentID)
}

// RemoveCascade deletes a ticket together with its line items.
func (s *Store) RemoveCascade(ticketID string) (ticket.Entity, []ticket.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed, ok := s.drop(ticket.KindTicket, ticketID)
	children := s.dropChildren(ticketID)
	return removed, children, ok
}

func (s *Store) Get(kind ticket.EntityKind, id string) (ticket.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[kind][id]
	return e, ok
}

// ListByParent returns the children of parentID ordered by id.
func (s *Store) ListByParent(kind ticket.EntityKind, parentID string) []ticket.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.children[parentID]
	out := make([]ticket.Entity, 0, len(ids))
	for id := range ids {
		if e, ok := s.entities[kind][id]; ok {
			out = append(out, e)
		}
	}
	sortByID(out)
	return out
}

// List returns every entity of kind ordered by id.
func (s *Store) List(kind ticket.EntityKind) []ticket.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ticket.Entity, 0, len(s.entities[kind]))
	for _, e := range s.entities[kind] {
		out = append(out, e)
	}
	sortByID(out)
	return out
}

func (s *Store) Len(kind ticket.EntityKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities[kind])
}

// Swap replaces the provisional entity tempID with the authoritative one
// in a single step. For a ticket, the provisional ticket's line items are
// dropped and replaced by children. There is no moment at which both or
// neither of the two entities are visible. An authoritative entity or
// child that is already stored was delivered by the feed and is kept as is.
func (s *Store) Swap(kind ticket.EntityKind, tempID string, authoritative ticket.Entity, children ...ticket.Entity) error {
	return s.swap(kind, tempID, nil, authoritative, children)
}

// SwapTree is Swap for a ticket created together with its line items.
// The provisional items named by tempItemIDs are dropped wherever they are
// parented, since an early echo may already have moved them under the
// authoritative ticket.
func (s *Store) SwapTree(tempID string, tempItemIDs []string, authoritative ticket.Entity, children ...ticket.Entity) error {
	return s.swap(ticket.KindTicket, tempID, tempItemIDs, authoritative, children)
}

func (s *Store) swap(kind ticket.EntityKind, tempID string, tempItemIDs []string, authoritative ticket.Entity, children []ticket.Entity) error {
	if authoritative.EntityKind() != kind {
		return fmt.Errorf("swap %s %s: authoritative entity is a %s", kind, tempID, authoritative.EntityKind())
	}
	for _, c := range children {
		if c.ParentID() != authoritative.EntityID() {
			return fmt.Errorf("swap %s %s: child %s belongs to %q", kind, tempID, c.EntityID(), c.ParentID())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.drop(kind, tempID)
	if kind == ticket.KindTicket {
		s.dropChildren(tempID)
	}
	for _, itemID := range tempItemIDs {
		s.drop(ticket.KindLineItem, itemID)
	}
	s.putIfAbsent(authoritative)
	for _, c := range children {
		s.putIfAbsent(c)
	}
	return nil
}

// Adopt replaces the provisional ticket tempID with the authoritative
// ticket and moves the provisional ticket's line items under it, in one
// step. It reports false and changes nothing when tempID is not stored.
func (s *Store) Adopt(tempID string, authoritative ticket.Entity) (bool, error) {
	if authoritative.EntityKind() != ticket.KindTicket {
		return false, fmt.Errorf("adopt %s: authoritative entity is a %s", tempID, authoritative.EntityKind())
	}
	reparent, err := json.Marshal(struct {
		TicketID string `json:"ticket_id"`
	}{authoritative.EntityID()})
	if err != nil {
		return false, fmt.Errorf("adopt %s: %w", tempID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[ticket.KindTicket][tempID]; !ok {
		return false, nil
	}
	moved := make([]ticket.Entity, 0, len(s.children[tempID]))
	for childID := range s.children[tempID] {
		c, ok := s.entities[ticket.KindLineItem][childID]
		if !ok {
			continue
		}
		m, err := c.MergeJSON(reparent)
		if err != nil {
			return false, fmt.Errorf("adopt %s: %w", tempID, err)
		}
		moved = append(moved, m)
	}

	s.drop(ticket.KindTicket, tempID)
	s.putIfAbsent(authoritative)
	for _, m := range moved {
		s.put(m)
	}
	return true, nil
}

// Capture records the current state of an entity for a later Restore.
func (s *Store) Capture(kind ticket.EntityKind, id string) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.captureLocked(kind, id)
}

func (s *Store) captureLocked(kind ticket.EntityKind, id string) Snapshot {
	snap := Snapshot{Kind: kind, ID: id}
	snap.Entity = s.entities[kind][id]
	if kind == ticket.KindTicket {
		for childID := range s.children[id] {
			if c, ok := s.entities[ticket.KindLineItem][childID]; ok {
				snap.Children = append(snap.Children, c)
			}
		}
	}
	return snap
}

// Restore puts the captured state back. An entity that was absent when
// captured is removed again.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Entity == nil {
		s.drop(snap.Kind, snap.ID)
		return
	}
	s.put(snap.Entity)
	for _, c := range snap.Children {
		s.put(c)
	}
}

func (s *Store) put(e ticket.Entity) {
	kind, id := e.EntityKind(), e.EntityID()
	if prev, ok := s.entities[kind][id]; ok && prev.ParentID() != e.ParentID() {
		s.unlink(prev.ParentID(), id)
	}
	s.entities[kind][id] = e
	if parent := e.ParentID(); parent != "" {
		set, ok := s.children[parent]
		if !ok {
			set = make(map[string]struct{})
			s.children[parent] = set
		}
		set[id] = struct{}{}
	}
}

func (s *Store) putIfAbsent(e ticket.Entity) {
	if _, ok := s.entities[e.EntityKind()][e.EntityID()]; !ok {
		s.put(e)
	}
}

func (s *Store) drop(kind ticket.EntityKind, id string) (ticket.Entity, bool) {
	e, ok := s.entities[kind][id]
	if !ok {
		return nil, false
	}
	delete(s.entities[kind], id)
	s.unlink(e.ParentID(), id)
	return e, true
}

func (s *Store) dropChildren(parentID string) []ticket.Entity {
	ids := s.children[parentID]
	removed := make([]ticket.Entity, 0, len(ids))
	for id := range ids {
		if e, ok := s.entities[ticket.KindLineItem][id]; ok {
			delete(s.entities[ticket.KindLineItem], id)
			removed = append(removed, e)
		}
	}
	delete(s.children, parentID)
	sortByID(removed)
	return removed
}

func (s *Store) unlink(parentID, id string) {
	if parentID == "" {
		return
	}
	if set, ok := s.children[parentID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(s.children, parentID)
		}
	}
}

func sortByID(es []ticket.Entity) {
	sort.Slice(es, func(i, j int) bool { return es[i].EntityID() < es[j].EntityID() })
}
