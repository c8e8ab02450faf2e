package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackctl/internal/core/config"
	"github.com/artpar/stackctl/internal/shell/git"
)

const testConfig = `
prefixes:
  service: myns_
  core: core_
docker-compose:
  project: proj
  network: shared-net
  registry: registry.example.com/
  tags: [latest, prod]
projects:
  platform:
    directory: platform
    repository: repo1
    services:
      - name: db
        core: true
        image_path: org/db
      - name: proxy
        enable: true
        image_path: org/proxy
      - name: reporting
        disable: reports
        image_path: org/reporting
  webapp:
    directory: webapp
    repository: repo2
    services:
      - name: web
        image_path: org/web
target-services:
  config: proxy
`

func testApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFile), []byte(testConfig), 0o644))
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	settings := &Settings{BaseDir: dir, ComposeBinary: "docker-compose"}
	return &app{settings: settings, logger: SetupLogger(settings, false), cfg: cfg}
}

// =============================================================================
// Flag Wiring
// =============================================================================

func TestRootCmd_RegistersGateFlags(t *testing.T) {
	a := testApp(t)
	root := newRootCmd(a)

	assert.NotNil(t, root.PersistentFlags().Lookup("enable-proxy"))
	assert.NotNil(t, root.PersistentFlags().Lookup("disable-reports"))
	assert.Nil(t, root.PersistentFlags().Lookup("enable-db"))
}

func TestRootCmd_RegistersPullConfigOnlyWithTarget(t *testing.T) {
	a := testApp(t)
	root := newRootCmd(a)
	found := false
	for _, cmd := range root.Commands() {
		if cmd.Name() == "pull-config" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSelection_ReflectsParsedFlags(t *testing.T) {
	a := testApp(t)
	root := newRootCmd(a)
	require.NoError(t, root.PersistentFlags().Parse(
		[]string{"--enable-proxy", "-p", "webapp", "-t", "prod"}))

	sel := a.selection()

	assert.Equal(t, "prod", sel.Tag)
	assert.Equal(t, []string{"webapp"}, sel.DevProjects)
	assert.True(t, sel.EnablePassed("proxy"))
	assert.False(t, sel.DisablePassed("reports"))
}

func TestPreRun_RejectsUnknownTagAndProject(t *testing.T) {
	a := testApp(t)
	newRootCmd(a)

	a.tag = "nope"
	err := a.preRun()
	require.Error(t, err)
	assert.IsType(t, &usageError{}, err)

	a.tag = "latest"
	a.devProjects = []string{"missing"}
	err = a.preRun()
	require.Error(t, err)
	assert.IsType(t, &usageError{}, err)
}

func TestPreRun_RejectsDevelopingDisabledConfigService(t *testing.T) {
	a := testApp(t)
	newRootCmd(a)

	// proxy is the config target; developing its project with the service
	// still disabled leaves nothing to serve configuration.
	a.devProjects = []string{"platform"}
	err := a.preRun()
	require.Error(t, err)
	assert.IsType(t, &usageError{}, err)

	*a.enableFlags["proxy"] = true
	assert.NoError(t, a.preRun())
}

// =============================================================================
// Helpers
// =============================================================================

func TestBuildArgs(t *testing.T) {
	assert.Empty(t, buildArgs(nil))
	assert.Equal(t,
		[]string{"--build-arg", "A=1", "--build-arg", "B=two"},
		buildArgs(map[string]any{"B": "two", "A": 1}))
	assert.Equal(t,
		[]string{"--build-arg", "A=1", "--build-arg", "B=2"},
		buildArgs([]any{"A=1", "B=2"}))
}

func TestParseExtraRemotes(t *testing.T) {
	extras, err := parseExtraRemotes([]string{"bob", "alice fork"})
	require.NoError(t, err)
	assert.Equal(t, []git.ExtraRemote{{Org: "bob"}, {Org: "alice", Name: "fork"}}, extras)

	_, err = parseExtraRemotes([]string{"a b c"})
	require.Error(t, err)
	assert.IsType(t, &usageError{}, err)
}

func TestFlagName(t *testing.T) {
	assert.Equal(t, "my-service", flagName("my_service"))
}

func TestRepoProjects(t *testing.T) {
	a := testApp(t)

	projects, err := a.repoProjects(false)
	require.NoError(t, err)
	assert.Len(t, projects, 2)

	a.devProjects = []string{"webapp"}
	projects, err = a.repoProjects(false)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "webapp", projects[0].Name)

	projects, err = a.repoProjects(true)
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestInvocation(t *testing.T) {
	a := testApp(t)
	newRootCmd(a)
	prep := &prepared{sel: a.selection(), devDocs: []string{"/dev/webapp/docker-compose.yml"}}

	inv := a.invocation(prep, []string{"up"})

	assert.Equal(t, []string{
		"docker-compose", "-p", "proj",
		"-f", a.cfg.ComposePath(),
		"-f", "/dev/webapp/docker-compose.yml",
	}, inv.Base)
	assert.Equal(t, []string{"up"}, inv.Args)
	require.Len(t, inv.CoreServices, 1)
	assert.Equal(t, "db", inv.CoreServices[0].Name)
}
