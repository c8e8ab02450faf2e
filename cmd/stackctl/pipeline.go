package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/artpar/stackctl/internal/core/compose"
	"github.com/artpar/stackctl/internal/core/config"
	"github.com/artpar/stackctl/internal/core/domain"
	"github.com/artpar/stackctl/internal/core/envfile"
	"github.com/artpar/stackctl/internal/shell/docker"
	"github.com/artpar/stackctl/internal/shell/runner"
)

// prepared is the output of the generation pipeline: everything a
// composition call needs beyond its own arguments.
type prepared struct {
	sel         domain.Selection
	status      map[domain.ServiceKey]bool
	devProjects []domain.Project
	devDocs     []string
}

// prepare runs the generation pipeline: verify the shared network, validate
// dev project directories and the environment file, reconcile dynamic
// options, link the environment file into dev projects, write the shared
// document, and render dev project templates. Aliases run it before every
// composition call so the generated files always match the flags.
func (a *app) prepare(ctx context.Context, engine *docker.Engine, noNetwork bool) (*prepared, error) {
	sel := a.selection()
	devProjects := a.cfg.DevProjects(sel.DevProjects)

	if !noNetwork {
		if err := engine.EnsureNetwork(ctx, a.cfg.Network()); err != nil {
			return nil, &domain.UserError{
				Msg: fmt.Sprintf("the docker network %s is not available: %v", a.cfg.Network(), err),
				Err: err,
			}
		}
	}
	if err := a.checkProjectDirectories(devProjects); err != nil {
		return nil, err
	}

	a.logger.Info("validating config file", "path", a.cfg.EnvFilePath())
	contents, err := envfile.Read(a.cfg.EnvFilePath())
	if err != nil {
		return nil, err
	}
	if err := envfile.CheckRequired(a.cfg.EnvFilePath(), contents, a.cfg.RequiredOptions()); err != nil {
		return nil, err
	}

	status := domain.EnabledStatus(a.cfg.Services(), sel)
	values := domain.ResolveDynamicOptions(a.cfg.Services(), status)
	if err := envfile.Sync(a.logger, a.cfg.EnvFilePath(), values); err != nil {
		return nil, err
	}

	if err := a.linkEnvFile(devProjects); err != nil {
		return nil, err
	}

	a.logger.Info("generating composed services",
		"path", a.cfg.ComposePath(), "dev_projects", len(devProjects), "tag", sel.Tag)
	doc := compose.BuildDocument(a.cfg, sel, status)
	if err := compose.WriteDocument(a.cfg.ComposePath(), doc); err != nil {
		return nil, err
	}

	tmplCtx := compose.NewTemplateContext(a.cfg, sel, status)
	devDocs := make([]string, 0, len(devProjects))
	for _, project := range devProjects {
		path, err := project.Path(a.cfg.BaseDir())
		if err != nil {
			return nil, err
		}
		if err := compose.RenderTemplate(a.logger, path, tmplCtx); err != nil {
			return nil, err
		}
		devDocs = append(devDocs, filepath.Join(path, config.ComposeFile))
	}

	return &prepared{sel: sel, status: status, devProjects: devProjects, devDocs: devDocs}, nil
}

func (a *app) checkProjectDirectories(projects []domain.Project) error {
	if len(projects) == 0 {
		a.logger.Debug("no projects specified, not validating directories")
		return nil
	}
	a.logger.Info("validating project directories", "projects", len(projects))
	for _, project := range projects {
		path, err := project.Path(a.cfg.BaseDir())
		if err != nil {
			return err
		}
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return domain.Userf("no directory found for the %q project at %s, please check the repository",
				project.Name, path)
		}
	}
	return nil
}

// linkEnvFile symlinks the shared environment file into each dev project so
// relative env_file entries resolve there too.
func (a *app) linkEnvFile(projects []domain.Project) error {
	if len(projects) == 0 {
		a.logger.Debug("no projects specified, not linking environment file")
		return nil
	}
	a.logger.Info("linking environment file into projects", "projects", len(projects))
	for _, project := range projects {
		path, err := project.Path(a.cfg.BaseDir())
		if err != nil {
			return err
		}
		link := filepath.Join(path, config.EnvFile)
		info, err := os.Lstat(link)
		switch {
		case err == nil && info.Mode()&os.ModeSymlink != 0:
			continue
		case err == nil:
			// A regular file shadows the shared one; replace it.
			if err := os.Remove(link); err != nil {
				return fmt.Errorf("removing %s: %w", link, err)
			}
		}
		if err := os.Symlink(a.cfg.EnvFilePath(), link); err != nil {
			return fmt.Errorf("linking %s: %w", link, err)
		}
		a.logger.Debug("linked environment file", "path", link)
	}
	return nil
}

// =============================================================================
// Composition Calls
// =============================================================================

// invocation assembles the composition call for the given arguments.
func (a *app) invocation(prep *prepared, args []string) runner.Invocation {
	base := append(a.settings.ComposeCommand(), "-p", a.cfg.ComposeProject(), "-f", a.cfg.ComposePath())
	for _, doc := range prep.devDocs {
		base = append(base, "-f", doc)
	}

	var core []domain.Service
	for _, svc := range a.cfg.Services() {
		if svc.Core && domain.IsEnabled(svc, prep.sel) {
			core = append(core, svc)
		}
	}

	return runner.Invocation{
		Base:         base,
		Args:         args,
		SharedDoc:    a.cfg.ComposePath(),
		DevDocs:      prep.devDocs,
		CoreServices: core,
		Prefixes:     a.cfg.Prefixes(),
	}
}

// runCompose runs the full pipeline and then the composition call itself.
// Child exit codes propagate as exitCodeError so the process exits with the
// same code.
func (a *app) runCompose(ctx context.Context, args []string, noNetwork bool) error {
	engine, err := docker.New(a.logger, a.settings.Docker.Host)
	if err != nil {
		return err
	}
	defer engine.Close()

	prep, err := a.prepare(ctx, engine, noNetwork)
	if err != nil {
		return err
	}

	waiter := runner.NewWaiter(a.logger, engine, a.settings.PollInterval)
	seq := runner.NewSequencer(a.logger, runner.ExecRunner{Logger: a.logger}, waiter)
	code, err := seq.Run(ctx, a.invocation(prep, args))
	if err != nil {
		return err
	}
	if code != 0 {
		return exitCodeError{code: code}
	}
	return nil
}

// buildArgs flattens the configured build arguments into CLI form. Mappings
// are emitted in sorted key order so repeated builds get identical commands.
func buildArgs(configured any) []string {
	var values []string
	switch v := configured.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			values = append(values, fmt.Sprintf("%s=%v", key, v[key]))
		}
	case []any:
		for _, item := range v {
			values = append(values, fmt.Sprintf("%v", item))
		}
	}

	var out []string
	for _, value := range values {
		out = append(out, "--build-arg", value)
	}
	return out
}
