package sse

import (
	"time"

	"github.com/GTDGit/pts_listener/internal/models"
)

// EventNotifier is the interface the dispatcher uses to publish outcomes.
type EventNotifier interface {
	NotifyPersisted(packetID string, ev *models.LogicalEvent)
	NotifyFailed(packetID string, ev *models.LogicalEvent, err error)
	NotifyStations(packetID string, system uint8, names []string)
}

// HubNotifier implements EventNotifier using the SSE Hub.
type HubNotifier struct {
	hub *Hub
	now func() time.Time
}

// NewHubNotifier creates a notifier backed by the given Hub.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub, now: time.Now}
}

func (n *HubNotifier) NotifyPersisted(packetID string, ev *models.LogicalEvent) {
	if n.hub.ClientCount() == 0 {
		return
	}
	n.hub.Broadcast(&StreamEvent{
		Event:     EventPersisted,
		PacketID:  packetID,
		Data:      ev,
		System:    ev.System,
		Timestamp: n.now(),
	})
}

func (n *HubNotifier) NotifyFailed(packetID string, ev *models.LogicalEvent, err error) {
	if n.hub.ClientCount() == 0 {
		return
	}
	n.hub.Broadcast(&StreamEvent{
		Event:     EventFailed,
		PacketID:  packetID,
		Data:      ev,
		System:    ev.System,
		Error:     err.Error(),
		Timestamp: n.now(),
	})
}

func (n *HubNotifier) NotifyStations(packetID string, system uint8, names []string) {
	if n.hub.ClientCount() == 0 {
		return
	}
	n.hub.Broadcast(&StreamEvent{
		Event:     EventStations,
		PacketID:  packetID,
		System:    system,
		Stations:  names,
		Timestamp: n.now(),
	})
}

// NopNotifier is a no-op implementation for when SSE is not needed.
type NopNotifier struct{}

func (n *NopNotifier) NotifyPersisted(string, *models.LogicalEvent)     {}
func (n *NopNotifier) NotifyFailed(string, *models.LogicalEvent, error) {}
func (n *NopNotifier) NotifyStations(string, uint8, []string)           {}
