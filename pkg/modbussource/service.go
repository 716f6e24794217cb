// Package modbussource reads a single inverter's active power over Modbus TCP
// for installs without a gateway. The device has no report clock of its own,
// so readings are stamped with the poll time.
package modbussource

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/goburrow/modbus"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/netprobe"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/units"
	"github.com/sirupsen/logrus"
)

var (
	ErrModbusNotConfigured = fmt.Errorf("modbus not configured")
	ErrModbusReadFailed    = fmt.Errorf("modbus read failed")
	ErrShortRead           = fmt.Errorf("modbus returned too few bytes")
)

const maxRetries = 3

type Source struct {
	cfg config.ModbusConfig
	log logrus.FieldLogger

	now        func() time.Time
	ping       func(host string) error
	read       func(ctx context.Context) ([]byte, error)
	retryDelay time.Duration
}

func New(cfg config.ModbusConfig, log logrus.FieldLogger) (*Source, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.Serial == 0 {
		return nil, ErrModbusNotConfigured
	}
	s := &Source{
		cfg:        cfg,
		log:        log,
		now:        time.Now,
		retryDelay: 2 * time.Second,
		ping: func(host string) error {
			_, _, err := netprobe.Ping(host, 2*time.Second)
			return err
		},
	}
	s.read = s.readRegisters
	return s, nil
}

// FetchSnapshot reads active power and returns it as a one-inverter snapshot.
func (s *Source) FetchSnapshot(ctx context.Context) (types.Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Join(ErrModbusReadFailed, ctx.Err())
			case <-time.After(s.retryDelay):
			}
		}

		// Ping check before attempting modbus connection
		if err := s.ping(s.cfg.Host); err != nil {
			lastErr = fmt.Errorf("ping failed on attempt %d: %w", attempt+1, err)
			continue
		}

		result, err := s.read(ctx)
		if err != nil {
			lastErr = fmt.Errorf("read power failed on attempt %d: %w", attempt+1, err)
			continue
		}

		power, err := decodePower(result)
		if err != nil {
			lastErr = err
			continue
		}

		return types.Snapshot{
			s.cfg.Serial: {
				Serial:     s.cfg.Serial,
				ReportTime: s.now().Truncate(time.Second),
				Watts:      units.ClampWatts(int64(power)),
			},
		}, nil
	}

	return nil, errors.Join(ErrModbusReadFailed, lastErr)
}

func (s *Source) readRegisters(ctx context.Context) ([]byte, error) {
	handler := modbus.NewTCPClientHandler(net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)))
	handler.Timeout = 10 * time.Second
	handler.SlaveId = s.cfg.SlaveId

	if err := handler.Connect(); err != nil {
		handler.Close()
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer handler.Close()

	// Inverters tend to drop requests sent right after the connect
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.retryDelay):
	}

	client := modbus.NewClient(handler)
	return client.ReadHoldingRegisters(s.cfg.Register, 2)
}

// decodePower reads the signed 32-bit big-endian active power register pair.
func decodePower(result []byte) (int32, error) {
	if len(result) < 4 {
		return 0, fmt.Errorf("%w: %d", ErrShortRead, len(result))
	}
	return int32(result[0])<<24 | int32(result[1])<<16 | int32(result[2])<<8 | int32(result[3]), nil
}
