package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/artpar/stackctl/internal/core/config"
	"github.com/artpar/stackctl/internal/core/domain"
)

// app carries the per-invocation state shared by all commands.
type app struct {
	settings *Settings
	logger   *slog.Logger
	cfg      *config.Config

	debug       bool
	tag         string
	devProjects []string

	enableFlags  map[string]*bool
	disableFlags map[string]*bool
}

// selection resolves the parsed flags into the domain selection every
// downstream component consumes.
func (a *app) selection() domain.Selection {
	sel := domain.Selection{
		Tag:           a.tag,
		DevProjects:   a.devProjects,
		EnableTokens:  make(map[string]bool),
		DisableTokens: make(map[string]bool),
	}
	for token, passed := range a.enableFlags {
		if *passed {
			sel.EnableTokens[token] = true
		}
	}
	for token, passed := range a.disableFlags {
		if *passed {
			sel.DisableTokens[token] = true
		}
	}
	return sel
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "stackctl",
		Short:         "Coordinates running projects and services through docker compose",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.preRun()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	flags := root.PersistentFlags()
	flags.StringArrayVarP(&a.devProjects, "projects-dev", "p", nil,
		fmt.Sprintf("The projects to develop locally, does not pull upstream images for them (one of: %s)",
			strings.Join(devProjectChoices(a.cfg), ", ")))
	flags.StringVarP(&a.tag, "tag", "t", a.cfg.Tags()[0],
		fmt.Sprintf("The docker tag to use for upstream images (one of: %s)",
			strings.Join(a.cfg.Tags(), ", ")))
	flags.BoolVarP(&a.debug, "debug", "d", false, "Enable debug output")

	a.registerGateFlags(flags)

	root.AddCommand(
		newInitCmd(a),
		newComposeCmd(a),
		newBuildCmd(a),
		newConfigCmd(a),
		newDownCmd(a),
		newPullCmd(a),
		newRmCmd(a),
		newStopCmd(a),
		newUpCmd(a),
		newUpDetachCmd(a),
		newUpRecreateCmd(a),
		newCheckoutCmd(a),
		newRepoStatusCmd(a),
	)
	if svc, _ := a.cfg.TargetService(config.TargetConfig, true); svc != nil {
		root.AddCommand(newPullConfigCmd(a))
	}

	return root
}

// registerGateFlags adds one --enable-X or --disable-X flag per distinct gate
// token declared in the configuration.
func (a *app) registerGateFlags(flags *pflag.FlagSet) {
	a.enableFlags = make(map[string]*bool)
	for _, ft := range domain.EnableFlagTokens(a.cfg.Services()) {
		a.enableFlags[ft.Token] = flags.Bool(
			"enable-"+flagName(ft.Token), false,
			fmt.Sprintf("Enables the optional %s, disabled by default", describeServices(ft.Services)))
	}
	a.disableFlags = make(map[string]*bool)
	for _, ft := range domain.DisableFlagTokens(a.cfg.Services()) {
		a.disableFlags[ft.Token] = flags.Bool(
			"disable-"+flagName(ft.Token), false,
			fmt.Sprintf("Disables the optional %s, enabled by default", describeServices(ft.Services)))
	}
}

// preRun finishes flag handling once parsing is done: logging, implicit
// dev project detection, and the validations that are too involved for the
// flag parser.
func (a *app) preRun() error {
	a.logger = SetupLogger(a.settings, a.debug)

	if !slices.Contains(a.cfg.Tags(), a.tag) {
		return usagef("invalid tag %q, must be one of: %s", a.tag, strings.Join(a.cfg.Tags(), ", "))
	}
	choices := devProjectChoices(a.cfg)
	for _, name := range a.devProjects {
		if !slices.Contains(choices, name) {
			return usagef("invalid dev project %q, must be one of: %s", name, strings.Join(choices, ", "))
		}
	}

	a.detectCurrentProject()

	// The config service cannot serve configuration while its own project is
	// checked out for development and the service itself is off.
	if svc, _ := a.cfg.TargetService(config.TargetConfig, true); svc != nil {
		sel := a.selection()
		if sel.IsDevProject(svc.Project) && !domain.IsEnabled(*svc, sel) {
			return usagef("to use the config service, you must not be developing on the %s project", svc.Project)
		}
	}
	return nil
}

// detectCurrentProject treats running from inside a project directory as
// developing that project.
func (a *app) detectCurrentProject() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}
	dirName := filepath.Base(cwd)
	baseDir, err := filepath.Abs(a.settings.BaseDir)
	if err != nil || dirName == filepath.Base(baseDir) {
		return
	}
	for _, project := range a.cfg.Projects() {
		if project.Directory == dirName && !slices.Contains(a.devProjects, project.Name) {
			a.logger.Info("assuming development for project", "project", project.Name)
			a.devProjects = append(a.devProjects, project.Name)
		}
	}
}

func devProjectChoices(cfg *config.Config) []string {
	var names []string
	for _, project := range cfg.Projects() {
		if project.Directory != "" {
			names = append(names, project.Name)
		}
	}
	return names
}

// flagName converts a gate token into flag form.
func flagName(token string) string {
	return strings.ReplaceAll(token, "_", "-")
}

func describeServices(services []domain.Service) string {
	if len(services) == 1 {
		return fmt.Sprintf("%s service from the %s project", services[0].Name, services[0].Project)
	}
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.Name)
	}
	return fmt.Sprintf("%s services", strings.Join(names, ", "))
}
