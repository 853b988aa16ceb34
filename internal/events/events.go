// Package events defines the delta-event vocabulary the charge-point
// registry emits and the event bus fans out to dashboard subscribers
// (component 4.J). It is deliberately tiny and import-cycle-free: both the
// registries and the bus depend on it, never on each other.
package events

// Topic is one of the bus's three fixed channels.
type Topic string

const (
	TopicStationUpdate   Topic = "station_update"
	TopicConnectorUpdate Topic = "connector_update"
	TopicPaymentUpdate   Topic = "payment_update"
)

// Event is a single delta. The station ID and timestamp travel in the
// Event's own ChargePointID and Timestamp fields (set by
// chargepoint.Registry's publish); Data is the station snapshot or
// connector state the mutation produced.
type Event struct {
	Topic         Topic
	ChargePointID string
	Timestamp     string
	Data          interface{}
}

// Publisher is implemented by the event bus; registries hold one of these
// rather than a concrete bus type.
type Publisher interface {
	Publish(Event)
}

// NopPublisher discards every event; useful for registry unit tests that
// don't care about fan-out.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
