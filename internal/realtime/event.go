// Package realtime pushes change notifications to connected clients.
//
// Events carry no data, only the resource keys that changed. Clients refetch
// through the REST API, so a dropped event costs at most one polling interval.
package realtime

import (
	"context"
	"time"
)

const EventResourceChanged = "resource.changed"

// Resource keys shared with clients.
const (
	ResourcePages   = "pages"
	ResourceFolders = "folders"
	ResourceTree    = "tree"
)

type Event struct {
	Type      string    `json:"type"`
	Resources []string  `json:"resources"`
	OwnerID   string    `json:"owner_id"`
	At        time.Time `json:"at"`
}

func ResourceChanged(ownerID string, resources ...string) Event {
	return Event{
		Type:      EventResourceChanged,
		Resources: resources,
		OwnerID:   ownerID,
		At:        time.Now().UTC(),
	}
}

// Publisher delivers an event to every session of its owner.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
