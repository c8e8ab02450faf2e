package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/stackctl/internal/core/compose"
	"github.com/artpar/stackctl/internal/core/config"
	"github.com/artpar/stackctl/internal/core/domain"
	"github.com/artpar/stackctl/internal/shell/docker"
	"github.com/artpar/stackctl/internal/shell/git"
	"github.com/artpar/stackctl/internal/shell/runner"
)

// =============================================================================
// Generation Commands
// =============================================================================

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generates compose files and copies configuration, but does not run any commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := docker.New(a.logger, a.settings.Docker.Host)
			if err != nil {
				return err
			}
			defer engine.Close()
			_, err = a.prepare(cmd.Context(), engine, false)
			return err
		},
	}
}

func newComposeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docker-compose [args...]",
		Aliases: []string{"dc"},
		Short:   "Generates compose files, copies configuration, and runs any docker-compose command",
		Args:    cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCompose(cmd.Context(), args, false)
		},
	}
	// Arguments after the first positional one belong to the composition
	// tool, including its flags.
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// =============================================================================
// Alias Commands
// =============================================================================

func newBuildCmd(a *app) *cobra.Command {
	var noCache bool
	var allProjects bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: `Alias for the "dc build" command`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runBuild(cmd.Context(), noCache, allProjects)
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Do not use cache when building the image")
	cmd.Flags().BoolVarP(&allProjects, "all-projects", "a", false,
		"Builds all projects instead of just those specified or by using the current directory")
	return cmd
}

// runBuild builds either everything or, when dev projects are selected, just
// their services.
func (a *app) runBuild(ctx context.Context, noCache, allProjects bool) error {
	engine, err := docker.New(a.logger, a.settings.Docker.Host)
	if err != nil {
		return err
	}
	defer engine.Close()

	prep, err := a.prepare(ctx, engine, false)
	if err != nil {
		return err
	}

	args := []string{"build"}
	if noCache {
		args = append(args, "--no-cache")
	}
	args = append(args, buildArgs(a.cfg.BuildArgs())...)
	if len(prep.devProjects) > 0 && !allProjects {
		for _, doc := range prep.devDocs {
			if _, err := os.Stat(doc); err != nil {
				a.logger.Debug("no compose file for project, skipping its services", "path", doc)
				continue
			}
			names, err := compose.ServiceNames(doc)
			if err != nil {
				return err
			}
			args = append(args, names...)
		}
	}

	exec := runner.ExecRunner{Logger: a.logger}
	code, err := exec.Run(append(a.invocation(prep, nil).Base, args...))
	if err != nil {
		return err
	}
	if code != 0 {
		return exitCodeError{code: code}
	}
	return nil
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: `Alias for the "dc config" command`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCompose(cmd.Context(), []string{"config"}, true)
		},
	}
}

func newDownCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: `Alias for the "dc down" command`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Orphans appear whenever enable/disable flags change between
			// runs, so always remove them.
			return a.runCompose(cmd.Context(), []string{"down", "--remove-orphans"}, false)
		},
	}
}

func newPullCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: `Alias for the "dc pull" command`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCompose(cmd.Context(), []string{"pull"}, false)
		},
	}
}

func newPullConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pull-config",
		Short: "Pulls the latest image for the config service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.cfg.TargetService(config.TargetConfig, false)
			if err != nil {
				return err
			}
			if !domain.IsEnabled(*svc, a.selection()) {
				return domain.Userf("cannot pull configuration when using the real config service")
			}
			return a.runCompose(cmd.Context(),
				[]string{"pull", svc.ContainerName(a.cfg.Prefixes())}, false)
		},
	}
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm",
		Short: `Alias for the "dc rm --force" command`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCompose(cmd.Context(), []string{"rm", "--force"}, false)
		},
	}
}

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: `Alias for the "dc stop" command`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCompose(cmd.Context(), []string{"stop"}, false)
		},
	}
}

func newUpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: `Alias for the "dc up" command`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCompose(cmd.Context(), []string{"up"}, false)
		},
	}
}

func newUpDetachCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "up-detach",
		Short: `Alias for the "dc up --detach" command`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCompose(cmd.Context(), []string{"up", "--detach"}, false)
		},
	}
}

func newUpRecreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "up-recreate",
		Short: `Alias for the "dc up --force-recreate" command`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCompose(cmd.Context(), []string{"up", "--force-recreate"}, false)
		},
	}
}

// =============================================================================
// Repository Commands
// =============================================================================

func newCheckoutCmd(a *app) *cobra.Command {
	var allProjects bool
	var extraRemotes []string
	cmd := &cobra.Command{
		Use:     "checkout",
		Aliases: []string{"co"},
		Short:   "Clones and/or updates repositories for all specified projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			extras, err := parseExtraRemotes(extraRemotes)
			if err != nil {
				return err
			}
			projects, err := a.repoProjects(allProjects)
			if err != nil {
				return err
			}
			return git.NewWorkspace(a.logger, a.cfg.BaseDir()).Checkout(projects, extras)
		},
	}
	cmd.Flags().BoolVarP(&allProjects, "all-projects", "a", false, "Checkout/clone all projects")
	cmd.Flags().StringArrayVarP(&extraRemotes, "extra-remote", "e", nil,
		`Add a remote when cloning/checking out, as "space" or "space name"`)
	return cmd
}

func newRepoStatusCmd(a *app) *cobra.Command {
	var allProjects bool
	cmd := &cobra.Command{
		Use:     "repo-status",
		Aliases: []string{"rs"},
		Short:   "Gets the status of the repos associated with this control repository",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projects, err := a.repoProjects(allProjects)
			if err != nil {
				return err
			}
			return git.NewWorkspace(a.logger, a.cfg.BaseDir()).Status(projects)
		},
	}
	cmd.Flags().BoolVarP(&allProjects, "all-projects", "a", false, "Get the status of all projects")
	return cmd
}

// repoProjects selects the projects repository commands operate on: the dev
// projects when some are selected, otherwise all of them.
func (a *app) repoProjects(allProjects bool) ([]domain.Project, error) {
	var projects []domain.Project
	if allProjects || len(a.devProjects) == 0 {
		projects = a.cfg.Projects()
	} else {
		projects = a.cfg.DevProjects(a.devProjects)
	}
	if len(projects) == 0 {
		return nil, domain.Userf("there are no projects available, please set projects")
	}
	return projects, nil
}

func parseExtraRemotes(specs []string) ([]git.ExtraRemote, error) {
	var extras []git.ExtraRemote
	for _, spec := range specs {
		parts := strings.Fields(spec)
		if len(parts) < 1 || len(parts) > 2 {
			return nil, usagef(`extra remotes take one or two values, as in -e "bob" or -e "bob origin" `+
				"where bob is the space the repo is forked in and origin an optional remote name, got %q", spec)
		}
		extra := git.ExtraRemote{Org: parts[0]}
		if len(parts) == 2 {
			extra.Name = parts[1]
		}
		extras = append(extras, extra)
	}
	return extras, nil
}
