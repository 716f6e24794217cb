// Package kafkasink forwards newly stored readings to a Kafka topic.
package kafkasink

import (
	"context"
	"strconv"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Sink struct {
	writer messageWriter
	log    logrus.FieldLogger
}

func New(cfg config.KafkaConfig, log logrus.FieldLogger) *Sink {
	log = log.WithField("topic", cfg.Topic)
	return &Sink{writer: newWriter(cfg, log), log: log}
}

// newWriter batches in the background so PublishReading returns without
// waiting on the broker. Delivery failures are only logged.
func newWriter(cfg config.KafkaConfig, log logrus.FieldLogger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		RequiredAcks: kafka.RequireOne,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.WithError(err).Warnf("Failed to deliver %d readings", len(messages))
			}
		},
	}
}

// Message keys readings by serial so one inverter's readings stay ordered
// within a partition.
func Message(reading types.StoredReading) kafka.Message {
	return kafka.Message{
		Key:   []byte(strconv.FormatUint(reading.Serial, 10)),
		Value: reading.ToJsonBytes(),
		Time:  reading.ReportTime,
	}
}

func (s *Sink) PublishReading(ctx context.Context, reading types.StoredReading) error {
	return s.writer.WriteMessages(ctx, Message(reading))
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
