package domain

import (
	"fmt"
	"time"
)

// EntityKind tags the entity a timeline item points at.
type EntityKind string

const (
	KindTask     EntityKind = "task"
	KindChat     EntityKind = "chat"
	KindDocument EntityKind = "document"
	KindMeeting  EntityKind = "meeting"
	KindEmail    EntityKind = "email"
)

// EntityKinds lists every kind that appears on the timeline.
var EntityKinds = []EntityKind{KindTask, KindChat, KindDocument, KindMeeting, KindEmail}

// ParseEntityKind validates a raw kind string.
func ParseEntityKind(raw string) (EntityKind, error) {
	for _, k := range EntityKinds {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", raw)
}

// Entity is the closed set of timeline payloads. Only types in this package
// implement it.
type Entity interface {
	Kind() EntityKind
	EntityID() string
	isEntity()
}

func (Task) Kind() EntityKind        { return KindTask }
func (Chat) Kind() EntityKind        { return KindChat }
func (Document) Kind() EntityKind    { return KindDocument }
func (Meeting) Kind() EntityKind     { return KindMeeting }
func (EmailThread) Kind() EntityKind { return KindEmail }

func (t Task) EntityID() string        { return t.ID }
func (c Chat) EntityID() string        { return c.ID }
func (d Document) EntityID() string    { return d.ID }
func (m Meeting) EntityID() string     { return m.ID }
func (e EmailThread) EntityID() string { return e.ID }

func (Task) isEntity()        {}
func (Chat) isEntity()        {}
func (Document) isEntity()    {}
func (Meeting) isEntity()     {}
func (EmailThread) isEntity() {}

// EntityRef is a typed, non-owning pointer to a stored entity.
type EntityRef struct {
	Kind EntityKind `json:"type"`
	ID   string     `json:"itemId"`
}

// TimelineItem is one entry of the activity feed. Data is filled by a join
// at read time and is never stored.
type TimelineItem struct {
	ID        string     `json:"id"`
	Type      EntityKind `json:"type"`
	ItemID    string     `json:"itemId"`
	CreatedAt time.Time  `json:"createdAt"`
	Data      Entity     `json:"data"`
}

// Ref returns the item's entity reference.
func (t TimelineItem) Ref() EntityRef {
	return EntityRef{Kind: t.Type, ID: t.ItemID}
}
