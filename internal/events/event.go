// Package events fans out per-image notifications to connected viewers.
package events

// Kind names an event on the wire.
type Kind string

const (
	KindConnected Kind = "connected"
	KindUpdated   Kind = "updated"
	KindExpired   Kind = "expired"
	KindDeleted   Kind = "deleted"
	KindPing      Kind = "ping"
)

// Event is one notification about a single resource.
type Event struct {
	Kind       Kind
	ResourceID string
	Data       map[string]any
}

// Payload is the JSON object sent to clients: Data plus resourceId.
func (e Event) Payload() map[string]any {
	out := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		out[k] = v
	}
	out["resourceId"] = e.ResourceID
	return out
}

// Terminal reports whether viewers should consider the resource gone.
func (e Event) Terminal() bool {
	return e.Kind == KindExpired || e.Kind == KindDeleted
}
