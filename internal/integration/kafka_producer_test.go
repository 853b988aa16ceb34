package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chargepoint/central-system/internal/events"
)

func TestMapTopicToIntegrationEventType(t *testing.T) {
	assert.Equal(t, "station.updated", mapTopic(events.TopicStationUpdate))
	assert.Equal(t, "connector.status_changed", mapTopic(events.TopicConnectorUpdate))
	assert.Equal(t, "transaction.updated", mapTopic(events.TopicPaymentUpdate))
	assert.Equal(t, "custom_topic", mapTopic(events.Topic("custom_topic")))
}

func TestToIntegrationEventCarriesFieldsThrough(t *testing.T) {
	evt := events.Event{
		Topic:         events.TopicPaymentUpdate,
		ChargePointID: "CP001",
		Timestamp:     "2026-07-31T10:00:00.000Z",
		Data:          map[string]int{"transactionId": 42},
	}

	out := toIntegrationEvent(evt, "event-1")
	assert.Equal(t, "event-1", out.EventID)
	assert.Equal(t, "transaction.updated", out.EventType)
	assert.Equal(t, "CP001", out.ChargePointID)
	assert.Equal(t, "2026-07-31T10:00:00.000Z", out.Timestamp)
	assert.Equal(t, evt.Data, out.Payload)
}
