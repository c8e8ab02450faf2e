package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/artpar/stackctl/internal/core/domain"
	"github.com/artpar/stackctl/internal/shell/docker"
)

// PortSource reads the published TCP port mappings of a running container.
type PortSource interface {
	PublishedPorts(ctx context.Context, containerName string) (map[int]int, error)
}

// Waiter blocks until a freshly started container is ready: its ports are
// published, each host port accepts TCP connections, and any declared health
// endpoints answer 200.
type Waiter struct {
	Ports       PortSource
	Interval    time.Duration
	DialTimeout time.Duration
	HTTP        *http.Client
	Logger      *slog.Logger
}

// NewWaiter returns a waiter with the given poll interval. A zero interval
// falls back to 100ms.
func NewWaiter(logger *slog.Logger, ports PortSource, interval time.Duration) *Waiter {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Waiter{
		Ports:       ports,
		Interval:    interval,
		DialTimeout: time.Second,
		HTTP:        &http.Client{Timeout: 2 * time.Second},
		Logger:      logger,
	}
}

// WaitForService polls until the named container is ready or ctx is
// cancelled. There is no deadline of its own: a service that never comes up
// blocks until the user interrupts.
func (w *Waiter) WaitForService(ctx context.Context, svc domain.Service, containerName string) error {
	w.Logger.Info("waiting for service to start", "service", svc.Name, "container", containerName)

	ports, err := w.waitForPorts(ctx, containerName)
	if err != nil {
		return err
	}
	for _, hostPort := range sortedValues(ports) {
		if err := w.waitForTCP(ctx, svc.Name, hostPort); err != nil {
			return err
		}
	}
	for _, containerPort := range sortedKeys(svc.WaitForPorts) {
		hostPort, ok := ports[containerPort]
		if !ok {
			w.Logger.Warn("no published host port for health check",
				"service", svc.Name, "container_port", containerPort)
			continue
		}
		if err := w.waitForHTTP(ctx, svc.Name, hostPort, svc.WaitForPorts[containerPort]); err != nil {
			return err
		}
	}

	w.Logger.Info("service is up", "service", svc.Name)
	return nil
}

// waitForPorts polls until the container reports published ports. Engine
// errors are retried: the container may not exist yet right after the start
// call, and a transient daemon failure should not abort the whole startup.
func (w *Waiter) waitForPorts(ctx context.Context, containerName string) (map[int]int, error) {
	for {
		ports, err := w.Ports.PublishedPorts(ctx, containerName)
		switch {
		case err != nil && errors.Is(err, docker.ErrContainerNotFound):
			w.Logger.Debug("container not running yet", "container", containerName)
		case err != nil:
			w.Logger.Warn("could not read published ports, retrying",
				"container", containerName, "error", err)
		case len(ports) > 0:
			return ports, nil
		default:
			w.Logger.Debug("ports not published yet", "container", containerName)
		}
		if err := w.sleep(ctx); err != nil {
			return nil, err
		}
	}
}

func (w *Waiter) waitForTCP(ctx context.Context, service string, hostPort int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", hostPort)
	for {
		conn, err := net.DialTimeout("tcp", addr, w.DialTimeout)
		if err == nil {
			return conn.Close()
		}
		w.Logger.Debug("port not accepting connections yet", "service", service, "addr", addr)
		if err := w.sleep(ctx); err != nil {
			return err
		}
	}
}

func (w *Waiter) waitForHTTP(ctx context.Context, service string, hostPort int, path string) error {
	url := fmt.Sprintf("http://localhost:%d%s", hostPort, path)
	for {
		ready, err := w.probeHTTP(ctx, url)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
		w.Logger.Debug("health endpoint not ready yet", "service", service, "url", url)
		if err := w.sleep(ctx); err != nil {
			return err
		}
	}
}

func (w *Waiter) probeHTTP(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := w.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func (w *Waiter) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(w.Interval):
		return nil
	}
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

func sortedValues(m map[int]int) []int {
	values := make([]int, 0, len(m))
	for _, v := range m {
		values = append(values, v)
	}
	sort.Ints(values)
	return values
}
