package push

import (
	"github.com/aliabuzahra/queue-sub006/internal/bus"
	"github.com/aliabuzahra/queue-sub006/internal/domain"
)

// Bridge subscribes to the C6 bus and fans matching events out to the C7
// groups they belong to, translating domain.Event into the five §4.7
// server notifications. This is the component the teacher has no
// equivalent of: broadcastToBoard is called directly from each HTTP
// handler, coupling persistence and push; here the bus decouples them.
type Bridge struct {
	hub *Hub
	sub *bus.Subscription
	done chan struct{}
}

// NewBridge subscribes to b and starts fanning events to hub until Stop is
// called. subscriberName is passed through to bus.Bus.Subscribe for
// DroppedCounts reporting.
func NewBridge(hub *Hub, b *bus.Bus, subscriberName string) *Bridge {
	br := &Bridge{hub: hub, sub: b.Subscribe(subscriberName), done: make(chan struct{})}
	go br.run()
	return br
}

func (br *Bridge) run() {
	for {
		select {
		case ev, ok := <-br.sub.Events():
			if !ok {
				return
			}
			br.dispatch(ev)
		case <-br.done:
			return
		}
	}
}

func (br *Bridge) Stop() {
	close(br.done)
	br.sub.Unsubscribe()
}

func (br *Bridge) dispatch(ev domain.Event) {
	if ev.QueueID != "" {
		group := QueueGroup(ev.TenantID, ev.QueueID)
		if msgType, ok := queueMessageType(ev.Kind); ok {
			br.hub.BroadcastToGroup(group, ServerMessage{Type: msgType, Data: ev.Payload})
		}
	}
	if ev.UserIdentifier != "" {
		group := UserGroup(ev.TenantID, ev.UserIdentifier)
		if msgType, ok := userMessageType(ev.Kind); ok {
			br.hub.BroadcastToGroup(group, ServerMessage{Type: msgType, Data: ev.Payload})
		}
	}
}

func queueMessageType(kind domain.EventKind) (string, bool) {
	switch kind {
	case domain.EventQueueCreated, domain.EventQueueActivated, domain.EventQueueDeactivated, domain.EventQueueScheduleUpdated:
		return MsgQueueUpdated, true
	case domain.EventUserEnqueued, domain.EventUserDropped:
		return MsgQueueStatistics, true
	default:
		return "", false
	}
}

func userMessageType(kind domain.EventKind) (string, bool) {
	switch kind {
	case domain.EventUserReleased:
		return MsgUserReleased, true
	case domain.EventUserServed, domain.EventUserDropped, domain.EventUserEnqueued:
		return MsgUserUpdated, true
	case domain.EventUserPositionChanged:
		return MsgPositionUpdated, true
	default:
		return "", false
	}
}
