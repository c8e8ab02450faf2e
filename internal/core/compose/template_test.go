package compose

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackctl/internal/core/config"
	"github.com/artpar/stackctl/internal/core/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testContext() TemplateContext {
	return TemplateContext{
		DevProjectNames: []string{"webapp"},
		EnabledServices: map[string]bool{"proxy": true, "legacy": false},
		Tag:             "latest",
		Registry:        "registry.example.com/",
		Network:         "shared-net",
		CorePrefix:      "core_",
		ServicePrefix:   "myns_",
	}
}

func TestRenderTemplate(t *testing.T) {
	dir := t.TempDir()
	tmpl := `services:
  {{ .ServicePrefix }}web:
    image: {{ .Registry }}org/web:{{ .Tag }}
    networks: [{{ .Network }}]
{{- if index .EnabledServices "proxy" }}
    depends_on: [{{ .ServicePrefix }}proxy]
{{- end }}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ComposeTemplate), []byte(tmpl), 0o644))

	require.NoError(t, RenderTemplate(discard(), dir, testContext()))

	raw, err := os.ReadFile(filepath.Join(dir, config.ComposeFile))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "image: registry.example.com/org/web:latest")
	assert.Contains(t, string(raw), "depends_on: [myns_proxy]")
}

func TestRenderTemplate_MissingTemplateIsNotAnError(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, RenderTemplate(discard(), dir, testContext()))

	_, err := os.Stat(filepath.Join(dir, config.ComposeFile))
	assert.True(t, os.IsNotExist(err))
}

func TestRenderTemplate_SyntaxErrorIsUserError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, config.ComposeTemplate),
		[]byte("services:\n  web:\n    image: {{ .Tag\n"), 0o644))

	err := RenderTemplate(discard(), dir, testContext())

	require.Error(t, err)
	assert.True(t, domain.IsUserError(err))
	assert.Contains(t, err.Error(), config.ComposeTemplate)
}

func TestNewTemplateContext(t *testing.T) {
	cfg := loadConfig(t, testConfig)
	sel := selection("prod", []string{"webapp"}, []string{"proxy"})
	status := domain.EnabledStatus(cfg.Services(), sel)

	ctx := NewTemplateContext(cfg, sel, status)

	assert.Equal(t, []string{"webapp"}, ctx.DevProjectNames)
	assert.Equal(t, "prod", ctx.Tag)
	assert.Equal(t, "prod.example.com/", ctx.Registry)
	assert.Equal(t, "shared-net", ctx.Network)
	assert.Equal(t, "core_", ctx.CorePrefix)
	assert.Equal(t, "myns_", ctx.ServicePrefix)
	assert.True(t, ctx.EnabledServices["proxy"])
	assert.True(t, ctx.EnabledServices["legacy"])
}
