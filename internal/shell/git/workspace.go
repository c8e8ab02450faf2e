// Package git manages the sibling project checkouts next to the control
// directory: cloning, updating and inspecting them through go-git.
package git

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/artpar/stackctl/internal/core/domain"
)

// UpstreamRemote is the remote name every checkout is cloned with so that
// personal forks can claim "origin".
const UpstreamRemote = "upstream"

// ExtraRemote is an additional remote to register after checkout. Org is the
// account the fork lives in; Name defaults to Org when empty.
type ExtraRemote struct {
	Org  string
	Name string
}

func (r ExtraRemote) remoteName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Org
}

// Workspace operates on the project checkouts that live next to baseDir.
type Workspace struct {
	logger  *slog.Logger
	baseDir string
	out     io.Writer
}

func NewWorkspace(logger *slog.Logger, baseDir string) *Workspace {
	return &Workspace{logger: logger, baseDir: baseDir, out: os.Stdout}
}

// Checkout clones or updates each project's repository. Projects without a
// configured repository are skipped. Failures are reported per project and
// do not stop the remaining ones.
func (w *Workspace) Checkout(projects []domain.Project, extras []ExtraRemote) error {
	w.logger.Info(fmt.Sprintf("checking out %d projects", len(projects)))

	failed := 0
	for _, project := range projects {
		if project.Repository == "" {
			w.logger.Debug("skipping project without a configured repository", "project", project.Name)
			continue
		}
		path, err := project.Path(w.baseDir)
		if err != nil {
			return err
		}

		repo, err := w.cloneOrUpdate(project, path)
		if err != nil {
			w.logger.Warn("could not clone or update project",
				"project", project.Name, "path", path, "error", err)
			failed++
			continue
		}
		w.addExtraRemotes(repo, project, extras)
	}

	if failed > 0 {
		return domain.Userf("%d projects could not be cloned or updated, see warnings above", failed)
	}
	return nil
}

func (w *Workspace) cloneOrUpdate(project domain.Project, path string) (*gogit.Repository, error) {
	if _, err := os.Stat(path); err == nil {
		w.logger.Info(fmt.Sprintf("########### %s (pulling changes) ###########", project.Name))
		repo, err := gogit.PlainOpen(path)
		if err != nil {
			return nil, err
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return nil, err
		}
		err = worktree.Pull(&gogit.PullOptions{
			RemoteName:    UpstreamRemote,
			ReferenceName: plumbing.Master,
			Progress:      w.out,
		})
		if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
			return nil, err
		}
		return repo, nil
	}

	w.logger.Info(fmt.Sprintf("########### %s (cloning) ###########", project.Name))
	return gogit.PlainClone(path, false, &gogit.CloneOptions{
		URL:        project.Repository,
		RemoteName: UpstreamRemote,
		Progress:   w.out,
	})
}

// addExtraRemotes registers each requested fork remote when it is not
// already present. The fork URL reuses the repository's host part with the
// fork's org and the project directory.
func (w *Workspace) addExtraRemotes(repo *gogit.Repository, project domain.Project, extras []ExtraRemote) {
	basePath := strings.SplitN(project.Repository, ":", 2)[0]
	for _, extra := range extras {
		name := extra.remoteName()
		if _, err := repo.Remote(name); err == nil {
			w.logger.Debug("remote already exists", "remote", name, "project", project.Name)
			continue
		}
		url := fmt.Sprintf("%s:%s/%s.git", basePath, extra.Org, project.Directory)
		w.logger.Info("adding remote", "remote", name, "url", url, "project", project.Name)
		_, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: name, URLs: []string{url}})
		if err != nil {
			w.logger.Warn("could not add remote",
				"remote", name, "project", project.Name, "error", err)
		}
	}
}

// Status prints a short branch and worktree summary for each project,
// leaving untracked files out.
func (w *Workspace) Status(projects []domain.Project) error {
	w.logger.Info(fmt.Sprintf("getting the git status for %d projects", len(projects)))

	for _, project := range projects {
		w.logger.Info(fmt.Sprintf("########### %s ###########", project.Name))
		if project.Repository == "" {
			w.logger.Info("no configured repository")
			continue
		}
		path, err := project.Path(w.baseDir)
		if err != nil {
			return err
		}
		if err := w.printStatus(path); err != nil {
			w.logger.Warn("could not read repository status",
				"project", project.Name, "error", err)
		}
	}
	return nil
}

func (w *Workspace) printStatus(path string) error {
	repo, err := gogit.PlainOpen(path)
	if err != nil {
		return err
	}
	head, err := repo.Head()
	if err != nil {
		return err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	status, err := worktree.Status()
	if err != nil {
		return err
	}

	fmt.Fprintf(w.out, "## %s\n", head.Name().Short())
	files := make([]string, 0, len(status))
	for file := range status {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		fs := status[file]
		if fs.Staging == gogit.Untracked && fs.Worktree == gogit.Untracked {
			continue
		}
		fmt.Fprintf(w.out, "%c%c %s\n", fs.Staging, fs.Worktree, file)
	}
	return nil
}
