package runner

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/artpar/stackctl/internal/core/compose"
	"github.com/artpar/stackctl/internal/core/domain"
)

// State tracks the sequencer's progress through a staged startup.
type State int

const (
	StateNotStarted State = iota
	StateCoreStarting
	StateCoreReady
	StateDependentsStarting
	StateUp
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateCoreStarting:
		return "CORE_STARTING"
	case StateCoreReady:
		return "CORE_READY"
	case StateDependentsStarting:
		return "DEPENDENTS_STARTING"
	case StateUp:
		return "UP"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// ReadinessWaiter blocks until a started container is ready to serve.
type ReadinessWaiter interface {
	WaitForService(ctx context.Context, svc domain.Service, containerName string) error
}

// Invocation is one fully resolved call to the composition tool.
type Invocation struct {
	// Base is the command prefix: binary, project flag and every file flag.
	Base []string
	// Args is the subcommand plus whatever the user passed after it.
	Args []string
	// SharedDoc is the generated shared definition file referenced by Base.
	SharedDoc string
	// DevDocs are the rendered per-project definition files referenced by
	// Base, in project order.
	DevDocs []string
	// CoreServices are the enabled core services, in declaration order.
	CoreServices []domain.Service
	Prefixes     domain.Prefixes
}

// Sequencer runs composition commands, splitting bare "up" calls into
// stages so core services are ready before anything that depends on them.
type Sequencer struct {
	logger *slog.Logger
	exec   Executor
	waiter ReadinessWaiter
	state  State
}

func NewSequencer(logger *slog.Logger, exec Executor, waiter ReadinessWaiter) *Sequencer {
	return &Sequencer{logger: logger, exec: exec, waiter: waiter, state: StateNotStarted}
}

// State returns the current sequencer state.
func (s *Sequencer) State() State {
	return s.state
}

// StagedUp reports whether args is an "up" call with no explicit service
// names. Only those are staged; naming services means the user wants exactly
// that set started, in one shot.
func StagedUp(args []string) bool {
	found := false
	for _, arg := range args {
		if arg == "up" {
			found = true
			continue
		}
		if !strings.HasPrefix(arg, "-") {
			return false
		}
	}
	return found
}

// Run executes the invocation. Staged "up" calls start enabled core services
// detached, wait for each to become ready, start the remaining shared
// services detached when dev projects are present, and finish with an
// attached call. Everything else is passed through in a single call.
func (s *Sequencer) Run(ctx context.Context, inv Invocation) (int, error) {
	if !StagedUp(inv.Args) {
		return s.exec.Run(append(slices.Clone(inv.Base), inv.Args...))
	}

	coreNames := make([]string, 0, len(inv.CoreServices))
	for _, svc := range inv.CoreServices {
		coreNames = append(coreNames, svc.ContainerName(inv.Prefixes))
	}
	detached := detachedArgs(inv.Args)

	s.setState(StateCoreStarting)
	if len(coreNames) > 0 {
		code, err := s.exec.Run(concat(inv.Base, detached, coreNames))
		if err != nil || code != 0 {
			s.setState(StateFailed)
			return code, err
		}
		for _, svc := range inv.CoreServices {
			if err := s.waiter.WaitForService(ctx, svc, svc.ContainerName(inv.Prefixes)); err != nil {
				s.setState(StateFailed)
				return 1, err
			}
		}
	}
	s.setState(StateCoreReady)

	sharedNames, err := compose.ServiceNames(inv.SharedDoc)
	if err != nil {
		s.setState(StateFailed)
		return 1, err
	}
	rest := subtract(sharedNames, coreNames)

	s.setState(StateDependentsStarting)
	final := concat(inv.Base, inv.Args)
	if len(inv.DevDocs) > 0 {
		// Shared services run detached in the background; the attached
		// call only follows the services under development.
		if len(rest) > 0 {
			code, err := s.exec.Run(concat(inv.Base, detached, rest))
			if err != nil || code != 0 {
				s.setState(StateFailed)
				return code, err
			}
		}
		for _, doc := range inv.DevDocs {
			devNames, err := compose.ServiceNames(doc)
			if err != nil {
				s.setState(StateFailed)
				return 1, err
			}
			final = append(final, devNames...)
		}
	} else {
		final = append(final, rest...)
	}

	code, err := s.exec.Run(final)
	if err != nil || code != 0 {
		s.setState(StateFailed)
		return code, err
	}
	s.setState(StateUp)
	return 0, nil
}

func (s *Sequencer) setState(next State) {
	s.logger.Debug("sequencer state change", "from", s.state.String(), "to", next.String())
	s.state = next
}

func detachedArgs(args []string) []string {
	if slices.Contains(args, "--detach") || slices.Contains(args, "-d") {
		return slices.Clone(args)
	}
	return append(slices.Clone(args), "--detach")
}

func subtract(names, exclude []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !slices.Contains(exclude, name) {
			out = append(out, name)
		}
	}
	return out
}

func concat(parts ...[]string) []string {
	var out []string
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}
