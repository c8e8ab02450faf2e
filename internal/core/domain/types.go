// Package domain holds the topology data model: projects, the services they
// declare, and the flag gates that decide which services run in a given
// invocation. This is part of the functional core - no I/O happens here.
package domain

import (
	"fmt"
	"path/filepath"
)

// =============================================================================
// Reserved Service Keys
// =============================================================================

// ReservedServiceKeys are service configuration keys consumed by stackctl
// itself. They are never passed through to the composed document.
var ReservedServiceKeys = map[string]bool{
	"name":            true,
	"core":            true,
	"enable":          true,
	"disable":         true,
	"dynamic-options": true,
	"wait-for-ports":  true,
}

// ImagePathKey is interpolated into a fully qualified image reference
// instead of being passed through verbatim.
const ImagePathKey = "image_path"

// =============================================================================
// Projects and Services
// =============================================================================

// Project is a unit of development: a named group of services, optionally
// backed by a local checkout and a source repository.
type Project struct {
	Name       string
	Directory  string
	Repository string
	Services   []Service
}

// Path resolves the project's local checkout directory relative to the
// control repository's base directory. Projects are checked out as siblings
// of the control repository.
func (p Project) Path(baseDir string) (string, error) {
	if p.Directory == "" {
		return "", &UserError{Msg: fmt.Sprintf("project %s does not have a directory, cannot get a path for it", p.Name)}
	}
	path, err := filepath.Abs(filepath.Join(baseDir, "..", p.Directory))
	if err != nil {
		return "", err
	}
	return path, nil
}

// DynamicOption is an environment-file entry whose value follows the owning
// service's resolved enabled state.
type DynamicOption struct {
	Key      string
	Enabled  string
	Disabled string
}

// Service is a single deployable unit belonging to exactly one project.
// Identity is the (project, service) name pair.
type Service struct {
	Project string
	Name    string
	Core    bool
	Enable  FlagGate
	Disable FlagGate

	// DynamicOptions preserves configuration order so that reconciled
	// environment files come out the same way every run.
	DynamicOptions []DynamicOption

	// WaitForPorts maps a container port to an HTTP health-check path that
	// must return 200 before the service is considered ready.
	WaitForPorts map[int]string

	// Extra carries every other configured key verbatim into the composed
	// document. Reserved keys are stripped at load time.
	Extra map[string]any
}

// ServiceKey is the composite identity of a service, usable as a map key.
type ServiceKey struct {
	Project string
	Name    string
}

// Key returns the service's composite identity.
func (s Service) Key() ServiceKey {
	return ServiceKey{Project: s.Project, Name: s.Name}
}

// Gated reports whether the service is toggled by a CLI flag at all.
func (s Service) Gated() bool {
	return s.Enable.Set() || s.Disable.Set()
}

// Prefixes are the container-name prefixes configured for regular and core
// services.
type Prefixes struct {
	Service string
	Core    string
}

// ContainerName is the name the service is known by to docker and to the
// composition tool: the configured prefix followed by the service name.
func (s Service) ContainerName(prefixes Prefixes) string {
	if s.Core {
		return prefixes.Core + s.Name
	}
	return prefixes.Service + s.Name
}

// =============================================================================
// Flag Gates
// =============================================================================

// GateKind discriminates the flag-gate variant.
type GateKind int

const (
	// GateUnset means the service is always active.
	GateUnset GateKind = iota
	// GateOwnName derives the flag token from the service's own name.
	GateOwnName
	// GateSharedToken names a flag token that may be shared by several
	// services, so one flag toggles all of them.
	GateSharedToken
)

// FlagGate describes how a service's enable or disable toggle binds to a CLI
// flag: not at all, by the service's own name, or by a shared token.
type FlagGate struct {
	Kind  GateKind
	token string
}

// GateFromConfig interprets a raw configuration value: absent/false is unset,
// true binds to the service's own name, and a non-empty string binds to a
// shared token.
func GateFromConfig(value any) (FlagGate, error) {
	switch v := value.(type) {
	case nil:
		return FlagGate{}, nil
	case bool:
		if v {
			return FlagGate{Kind: GateOwnName}, nil
		}
		return FlagGate{}, nil
	case string:
		if v == "" {
			return FlagGate{}, nil
		}
		return FlagGate{Kind: GateSharedToken, token: v}, nil
	default:
		return FlagGate{}, fmt.Errorf("flag gate must be a boolean or a token string, got %T", value)
	}
}

// SharedGate builds a gate bound to the given token.
func SharedGate(token string) FlagGate {
	return FlagGate{Kind: GateSharedToken, token: token}
}

// OwnNameGate builds a gate bound to the owning service's name.
func OwnNameGate() FlagGate {
	return FlagGate{Kind: GateOwnName}
}

// Set reports whether the gate is configured.
func (g FlagGate) Set() bool {
	return g.Kind != GateUnset
}

// Token resolves the flag token for a service with the given name.
func (g FlagGate) Token(serviceName string) string {
	if g.Kind == GateSharedToken {
		return g.token
	}
	return serviceName
}
