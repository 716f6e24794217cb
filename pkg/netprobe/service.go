package netprobe

import (
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

var ErrNoResponse = fmt.Errorf("no response")

// Ping sends a single unprivileged echo to host and returns the round trip.
func Ping(host string, timeout time.Duration) (bool, time.Duration, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, 0, err
	}

	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false) // UDP-based, no root needed

	err = pinger.Run()
	if err != nil {
		return false, 0, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv > 0 {
		return true, stats.AvgRtt, nil
	}

	return false, 0, ErrNoResponse
}
