package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/config"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/netprobe"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/types"
	"github.com/rbroders/Enphase-Inverter-Analyzer/pkg/units"
	"github.com/sirupsen/logrus"
)

// Client polls the Envoy gateway's per-inverter production report.
type Client struct {
	http *resty.Client
	host string
	log  logrus.FieldLogger

	// probe checks the gateway host answers before logging in again
	probe func(host string) error
}

func NewClient(cfg config.GatewayConfig, log logrus.FieldLogger) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("gateway url %q has no host", cfg.URL)
	}

	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetLogger(log).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}
	if cfg.InsecureTLS {
		httpClient.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	return &Client{
		http: httpClient,
		host: u.Hostname(),
		log:  log,
		probe: func(host string) error {
			_, _, err := netprobe.Ping(host, 2*time.Second)
			return err
		},
	}, nil
}

// FetchSnapshot returns the latest report of every microinverter.
func (c *Client) FetchSnapshot(ctx context.Context) (types.Snapshot, error) {
	var reports []inverterReport
	resp, err := c.http.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&reports).
		Get(InvertersPath)
	if err != nil {
		return nil, &TransientFetchError{Operation: "fetch", Err: err}
	}
	if err := statusError(resp); err != nil {
		return nil, &TransientFetchError{Operation: "fetch", StatusCode: resp.StatusCode(), Err: err}
	}

	snapshot := make(types.Snapshot, len(reports))
	for _, report := range reports {
		if report.DevType != MicroinverterDevType {
			c.log.WithField("serial", report.SerialNumber).Warnf("Skipping device with devType %d", report.DevType)
			continue
		}
		serial, err := strconv.ParseUint(report.SerialNumber, 10, 64)
		if err != nil {
			c.log.WithField("serial", report.SerialNumber).Warnf("Skipping device with invalid serial: %v", err)
			continue
		}
		if report.LastReportWatts < 0 {
			c.log.WithField("serial", serial).Debugf("Negative report %dW clamped to 0", report.LastReportWatts)
		}
		snapshot[serial] = types.InverterReport{
			Serial:     serial,
			ReportTime: time.Unix(report.LastReportDate, 0),
			Watts:      units.ClampWatts(report.LastReportWatts),
		}
	}

	// An empty list is a successful poll, the engine counts it as stale
	if len(snapshot) == 0 {
		c.log.Debug("Gateway reported no inverters")
	}
	return snapshot, nil
}

// Login validates the bearer token with the gateway, which hands back a
// session cookie kept in the client's jar.
func (c *Client) Login(ctx context.Context) error {
	if err := c.probe(c.host); err != nil {
		return &TransientFetchError{Operation: "login", Err: fmt.Errorf("%w: %v", ErrUnreachable, err)}
	}

	resp, err := c.http.R().
		SetContext(ctx).
		Get(CheckJwtPath)
	if err != nil {
		return &TransientFetchError{Operation: "login", Err: err}
	}
	if err := statusError(resp); err != nil {
		return &TransientFetchError{Operation: "login", StatusCode: resp.StatusCode(), Err: err}
	}
	c.log.Info("Gateway session renewed")
	return nil
}

func statusError(resp *resty.Response) error {
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return ErrUnauthorized
	case resp.IsError() || resp.StatusCode() >= 300:
		return fmt.Errorf("%w: %s", ErrBadStatus, resp.Status())
	}
	return nil
}
