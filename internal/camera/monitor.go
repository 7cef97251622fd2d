package camera

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// ProbeFunc checks whether a camera is currently reachable
type ProbeFunc func(ctx context.Context) error

// Monitor periodically probes cameras and flips their registry status.
// It is used in monitor mode, where no capture pipelines run but the
// dashboard should still reflect camera reachability.
type Monitor struct {
	registry *Registry
	interval time.Duration
	probes   map[int]ProbeFunc
}

// NewMonitor creates a monitor probing at the given interval
func NewMonitor(registry *Registry, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		registry: registry,
		interval: interval,
		probes:   make(map[int]ProbeFunc),
	}
}

// Watch adds a camera to the probe cycle. Must be called before Run.
func (m *Monitor) Watch(cameraID int, probe ProbeFunc) {
	m.probes[cameraID] = probe
}

// Run probes all watched cameras until ctx is cancelled. The first cycle
// runs immediately.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.probeAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) probeAll(ctx context.Context) {
	for cameraID, probe := range m.probes {
		if err := probe(ctx); err != nil {
			log.Printf("[Monitor] Camera %d unreachable: %v", cameraID, err)
			m.registry.SetStatus(cameraID, StatusOffline, nil)
			continue
		}
		m.registry.SetStatus(cameraID, StatusOnline, nil)
	}
}

// HTTPProbe reports a camera reachable when its endpoint answers with a
// non-5xx status
func HTTPProbe(client *http.Client, url string) ProbeFunc {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("endpoint returned %s", resp.Status)
		}
		return nil
	}
}

// DeviceProbe reports a camera reachable when its device node exists
func DeviceProbe(path string) ProbeFunc {
	return func(ctx context.Context) error {
		_, err := os.Stat(path)
		return err
	}
}
