// Package hapublish announces capture summaries to Home Assistant over MQTT.
package hapublish

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/capture"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/sirupsen/logrus"
)

type entity struct {
	name        string
	deviceClass string
	unit        string
	jsonKey     string
	stateClass  string
}

var entities = []entity{
	{"Production", "power", "W", "total_watts", "measurement"},
	{"Mean Production", "power", "W", "mean_watts", "measurement"},
	{"Stored Readings", "", "", "stored", "total_increasing"},
	{"Stale Cycles", "", "", "stale_cycles", "total_increasing"},
	{"Inverters", "", "", "inverters", "measurement"},
}

type discoveryConfig struct {
	Name          string `json:"name,omitempty"`
	DeviceClass   string `json:"device_class,omitempty"`
	StateTopic    string `json:"state_topic"`
	UnitOfMeasure string `json:"unit_of_measurement,omitempty"`
	ValueTemplate string `json:"value_template"`
	UniqueId      string `json:"unique_id"`
	ExpireAfter   uint   `json:"expire_after,omitempty"`
	StateClass    string `json:"state_class,omitempty"`
	Device        struct {
		Identifiers  []string `json:"identifiers"`
		Name         string   `json:"name"`
		Manufacturer string   `json:"manufacturer,omitempty"`
		Model        string   `json:"model,omitempty"`
	} `json:"device"`
}

type statePayload struct {
	TotalWatts  uint64  `json:"total_watts"`
	MeanWatts   float64 `json:"mean_watts"`
	Stored      uint64  `json:"stored"`
	StaleCycles uint64  `json:"stale_cycles"`
	Inverters   int     `json:"inverters"`
}

func StateTopic(deviceId string) string {
	return "homeassistant/sensor/" + deviceId + "/state"
}

// DiscoveryMessages builds the retained Home Assistant sensor configs.
// Sensors expire when no state arrives for three summary intervals.
func DiscoveryMessages(deviceId string, summaryInterval time.Duration) ([]*paho.Publish, error) {
	var messages []*paho.Publish
	for _, e := range entities {
		cfg := discoveryConfig{
			Name:          e.name,
			DeviceClass:   e.deviceClass,
			StateTopic:    StateTopic(deviceId),
			UnitOfMeasure: e.unit,
			ValueTemplate: "{{ value_json." + e.jsonKey + " }}",
			UniqueId:      deviceId + "_" + e.jsonKey,
			ExpireAfter:   uint(3 * summaryInterval / time.Second),
			StateClass:    e.stateClass,
		}
		cfg.Device.Identifiers = []string{deviceId}
		cfg.Device.Name = "Inverter Capture"
		cfg.Device.Manufacturer = "Enphase"
		cfg.Device.Model = "IQ Gateway"

		payload, err := json.Marshal(cfg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, &paho.Publish{
			QoS:     1,
			Retain:  true,
			Topic:   "homeassistant/sensor/" + deviceId + "-" + e.jsonKey + "/config",
			Payload: payload,
		})
	}
	return messages, nil
}

func StateMessage(deviceId string, summary capture.Summary) (*paho.Publish, error) {
	payload, err := json.Marshal(statePayload{
		TotalWatts:  summary.TotalWatts,
		MeanWatts:   summary.MeanWatts,
		Stored:      summary.Total.Stored,
		StaleCycles: summary.Total.StaleCycles,
		Inverters:   summary.Inverters,
	})
	if err != nil {
		return nil, err
	}
	return &paho.Publish{QoS: 1, Topic: StateTopic(deviceId), Payload: payload}, nil
}

// Publisher keeps an MQTT connection and implements capture.SummarySink.
type Publisher struct {
	cm       *autopaho.ConnectionManager
	deviceId string
	log      logrus.FieldLogger
}

func brokerURL(cfg config.MQTTConfig) (*url.URL, error) {
	return url.Parse("mqtt://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
}

// Connect starts the connection manager. Discovery configs are published on
// every (re)connect.
func Connect(ctx context.Context, cfg config.MQTTConfig, summaryInterval time.Duration, log logrus.FieldLogger) (*Publisher, error) {
	u, err := brokerURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt broker url: %w", err)
	}
	discovery, err := DiscoveryMessages(cfg.DeviceId, summaryInterval)
	if err != nil {
		return nil, err
	}

	p := &Publisher{deviceId: cfg.DeviceId, log: log}
	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{u},
		ConnectUsername:               cfg.Username,
		ConnectPassword:               []byte(cfg.Password),
		KeepAlive:                     20,
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			log.Infof("MQTT connection up to %s", u.Host)
			for _, msg := range discovery {
				if _, err := cm.Publish(ctx, msg); err != nil {
					log.WithError(err).WithField("topic", msg.Topic).Warn("Failed to publish discovery config")
				}
			}
		},
		OnConnectError: func(err error) { log.WithError(err).Warn("MQTT connection attempt failed") },
		ClientConfig: paho.ClientConfig{
			ClientID:      cfg.ClientId,
			OnClientError: func(err error) { log.WithError(err).Warn("MQTT client error") },
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					log.Warnf("MQTT server requested disconnect: %s", d.Properties.ReasonString)
				} else {
					log.Warnf("MQTT server requested disconnect; reason code: %d", d.ReasonCode)
				}
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm
	return p, nil
}

// PublishSummary sends the state JSON. It fails fast while the broker is
// unreachable rather than holding up the capture loop.
func (p *Publisher) PublishSummary(ctx context.Context, summary capture.Summary) error {
	msg, err := StateMessage(p.deviceId, summary)
	if err != nil {
		return err
	}
	awaitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.cm.AwaitConnection(awaitCtx); err != nil {
		return fmt.Errorf("mqtt not connected: %w", err)
	}
	_, err = p.cm.Publish(ctx, msg)
	return err
}

func (p *Publisher) Close(ctx context.Context) error {
	return p.cm.Disconnect(ctx)
}
