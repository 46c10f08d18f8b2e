package domain

import "time"

// EventKind enumerates the C6 Event Bus topics (spec §4.6).
type EventKind string

const (
	EventUserEnqueued         EventKind = "UserEnqueued"
	EventUserPositionChanged  EventKind = "UserPositionChanged"
	EventUserReleased         EventKind = "UserReleased"
	EventUserDropped          EventKind = "UserDropped"
	EventUserServed           EventKind = "UserServed"
	EventQueueCreated         EventKind = "QueueCreated"
	EventQueueActivated       EventKind = "QueueActivated"
	EventQueueDeactivated     EventKind = "QueueDeactivated"
	EventQueueScheduleUpdated EventKind = "QueueScheduleUpdated"
	EventTenantCreated        EventKind = "TenantCreated"
	EventTenantActivated      EventKind = "TenantActivated"
	EventTenantDeactivated    EventKind = "TenantDeactivated"
)

// Event is the envelope every C6 subscriber receives. Entities never push
// events themselves (spec §9 redesign flag) — operations in internal/engine
// and internal/release build and return/publish Events explicitly.
type Event struct {
	Kind           EventKind
	TenantID       string
	QueueID        string
	UserIdentifier string
	Payload        interface{}
	Timestamp      time.Time
}
