// Package docker is the thin engine adapter used for the startup protocol:
// it ensures the shared network exists and reads published ports off running
// containers. Container lifecycle itself belongs to the composition tool.
package docker

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// Engine wraps the docker SDK client.
type Engine struct {
	cli    *client.Client
	logger *slog.Logger
}

// New creates an engine adapter. An empty host uses the environment's
// default docker endpoint.
func New(logger *slog.Logger, host string) (*Engine, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, newEngineError("New", "", "", "failed to create client", ErrConnectionFailed)
	}
	return &Engine{cli: cli, logger: logger}, nil
}

// Close closes the underlying client connection.
func (e *Engine) Close() error {
	return e.cli.Close()
}

// EnsureNetwork creates the shared network when it does not exist yet.
func (e *Engine) EnsureNetwork(ctx context.Context, name string) error {
	e.logger.Debug("checking for docker network", "network", name)
	_, err := e.cli.NetworkInspect(ctx, name, network.InspectOptions{})
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return newEngineError("EnsureNetwork", "network", name, err.Error(), err)
	}

	e.logger.Info("creating docker network", "network", name)
	if _, err := e.cli.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"}); err != nil {
		return newEngineError("EnsureNetwork", "network", name, err.Error(), err)
	}
	return nil
}

// PublishedPorts returns the container's TCP port mappings as container port
// to host port. A just-started container may legitimately report none yet.
func (e *Engine) PublishedPorts(ctx context.Context, containerName string) (map[int]int, error) {
	resp, err := e.cli.ContainerInspect(ctx, containerName)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, newEngineError("PublishedPorts", "container", containerName, "container not found", ErrContainerNotFound)
		}
		return nil, newEngineError("PublishedPorts", "container", containerName, err.Error(), err)
	}

	ports := make(map[int]int)
	if resp.NetworkSettings == nil {
		return ports, nil
	}
	for containerPort, bindings := range resp.NetworkSettings.Ports {
		if nat.Port(containerPort).Proto() != "tcp" {
			continue
		}
		for _, binding := range bindings {
			hostPort, err := strconv.Atoi(binding.HostPort)
			if err != nil || hostPort == 0 {
				continue
			}
			ports[nat.Port(containerPort).Int()] = hostPort
			break
		}
	}
	return ports, nil
}
