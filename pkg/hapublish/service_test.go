package hapublish

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/capture"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryMessages(t *testing.T) {
	messages, err := DiscoveryMessages("inverter_capture", 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, messages, len(entities))

	first := messages[0]
	assert.Equal(t, "homeassistant/sensor/inverter_capture-total_watts/config", first.Topic)
	assert.True(t, first.Retain)

	var cfg discoveryConfig
	require.NoError(t, json.Unmarshal(first.Payload, &cfg))
	assert.Equal(t, "power", cfg.DeviceClass)
	assert.Equal(t, "W", cfg.UnitOfMeasure)
	assert.Equal(t, "homeassistant/sensor/inverter_capture/state", cfg.StateTopic)
	assert.Equal(t, "{{ value_json.total_watts }}", cfg.ValueTemplate)
	assert.Equal(t, uint(900), cfg.ExpireAfter)
	assert.Equal(t, []string{"inverter_capture"}, cfg.Device.Identifiers)

	topics := map[string]bool{}
	for _, m := range messages {
		topics[m.Topic] = true
	}
	assert.True(t, topics["homeassistant/sensor/inverter_capture-stored/config"])
	assert.True(t, topics["homeassistant/sensor/inverter_capture-stale_cycles/config"])
}

func TestStateMessage(t *testing.T) {
	summary := capture.Summary{
		Total:      capture.Counters{Stored: 120, StaleCycles: 7},
		Interval:   capture.Counters{Stored: 3},
		TotalWatts: 4100,
		MeanWatts:  4012.5,
		Inverters:  16,
	}
	msg, err := StateMessage("inverter_capture", summary)
	require.NoError(t, err)
	assert.Equal(t, "homeassistant/sensor/inverter_capture/state", msg.Topic)
	assert.JSONEq(t, `{"total_watts":4100,"mean_watts":4012.5,"stored":120,"stale_cycles":7,"inverters":16}`, string(msg.Payload))
}

func TestBrokerURL(t *testing.T) {
	u, err := brokerURL(config.MQTTConfig{Host: "broker.local", Port: 1883})
	require.NoError(t, err)
	assert.Equal(t, "mqtt://broker.local:1883", u.String())
}
