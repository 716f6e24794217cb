package kafkasink

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestMessage(t *testing.T) {
	at := time.Date(2024, 6, 21, 12, 5, 31, 0, time.UTC)
	msg := Message(types.StoredReading{ReportTime: at, Serial: 482201000001, Watts: 301})

	assert.Equal(t, "482201000001", string(msg.Key))
	assert.Equal(t, at, msg.Time)

	decoded := types.StoredReadingFromJsonBytes(msg.Value)
	require.NotNil(t, decoded)
	assert.Equal(t, uint16(301), decoded.Watts)
	assert.True(t, decoded.ReportTime.Equal(at))
}

func TestPublishReading(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	writer := &fakeWriter{}
	sink := &Sink{writer: writer, log: log}

	require.NoError(t, sink.PublishReading(context.Background(), types.StoredReading{Serial: 3, Watts: 10}))
	require.NoError(t, sink.PublishReading(context.Background(), types.StoredReading{Serial: 4, Watts: 11}))
	require.Len(t, writer.messages, 2)
	assert.Equal(t, "4", string(writer.messages[1].Key))

	require.NoError(t, sink.Close())
	assert.True(t, writer.closed)
}

func TestNewWriterIsAsync(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	w := newWriter(config.KafkaConfig{Brokers: []string{"127.0.0.1:1"}, Topic: "inverter-readings"}, log)
	defer w.Close()

	assert.True(t, w.Async)
	assert.LessOrEqual(t, w.BatchTimeout, 100*time.Millisecond)
	require.NotNil(t, w.Completion)
	w.Completion([]kafka.Message{{}}, errors.New("broker down"))
}
