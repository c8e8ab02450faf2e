package compose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackctl/internal/core/config"
	"github.com/artpar/stackctl/internal/core/domain"
)

func loadConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFile), []byte(body), 0o644))
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	return cfg
}

const testConfig = `
prefixes:
  service: myns_
  core: core_
docker-compose:
  project: proj
  network: shared-net
  registry: registry.example.com/
  registries-by-tag:
    prod: prod.example.com/
  tags: [latest, prod]
  volumes:
    cache: {}
projects:
  platform:
    directory: platform
    repository: repo1
    services:
      - name: db
        core: true
        image_path: org/db
      - name: api
        image_path: org/api
        environment:
          API_MODE: full
      - name: proxy
        enable: true
        image_path: org/proxy
      - name: legacy
        disable: true
        image_path: org/legacy
        env_file: [./custom.env]
        networks: [other-net]
  webapp:
    directory: webapp
    repository: repo2
    services:
      - name: web
        image_path: org/web
`

func selection(tag string, dev []string, enable []string) domain.Selection {
	sel := domain.Selection{
		Tag:           tag,
		DevProjects:   dev,
		EnableTokens:  map[string]bool{},
		DisableTokens: map[string]bool{},
	}
	for _, token := range enable {
		sel.EnableTokens[token] = true
	}
	return sel
}

func buildDoc(t *testing.T, cfg *config.Config, sel domain.Selection) map[string]any {
	t.Helper()
	status := domain.EnabledStatus(cfg.Services(), sel)
	return BuildDocument(cfg, sel, status)
}

// =============================================================================
// Document Building
// =============================================================================

func TestBuildDocument_ExcludesDevProjectServices(t *testing.T) {
	cfg := loadConfig(t, testConfig)

	doc := buildDoc(t, cfg, selection("latest", []string{"webapp"}, nil))

	services := doc["services"].(map[string]any)
	assert.Contains(t, services, "core_db")
	assert.Contains(t, services, "myns_api")
	assert.NotContains(t, services, "myns_web")
}

func TestBuildDocument_SkipsDisabledServices(t *testing.T) {
	cfg := loadConfig(t, testConfig)

	// proxy is opt-in and not enabled; legacy is opt-out and not disabled.
	doc := buildDoc(t, cfg, selection("latest", nil, nil))
	services := doc["services"].(map[string]any)
	assert.NotContains(t, services, "myns_proxy")
	assert.Contains(t, services, "myns_legacy")

	// Passing the enable flag brings the opt-in service back.
	doc = buildDoc(t, cfg, selection("latest", nil, []string{"proxy"}))
	services = doc["services"].(map[string]any)
	assert.Contains(t, services, "myns_proxy")
}

func TestBuildDocument_ImageInterpolation(t *testing.T) {
	cfg := loadConfig(t, testConfig)

	doc := buildDoc(t, cfg, selection("latest", nil, nil))
	api := doc["services"].(map[string]any)["myns_api"].(map[string]any)
	assert.Equal(t, "registry.example.com/org/api:latest", api["image"])
	assert.NotContains(t, api, "image_path")

	// Per-tag registries override the base registry.
	doc = buildDoc(t, cfg, selection("prod", nil, nil))
	api = doc["services"].(map[string]any)["myns_api"].(map[string]any)
	assert.Equal(t, "prod.example.com/org/api:prod", api["image"])
}

func TestBuildDocument_InjectsDefaultsOnlyWhenAbsent(t *testing.T) {
	cfg := loadConfig(t, testConfig)

	doc := buildDoc(t, cfg, selection("latest", nil, nil))
	services := doc["services"].(map[string]any)

	api := services["myns_api"].(map[string]any)
	assert.Equal(t, []any{"./docker-compose.env"}, api["env_file"])
	assert.Equal(t, []any{"shared-net"}, api["networks"])

	// Explicit per-service values win over the injected defaults.
	legacy := services["myns_legacy"].(map[string]any)
	assert.Equal(t, []any{"./custom.env"}, legacy["env_file"])
	assert.Equal(t, []any{"other-net"}, legacy["networks"])
}

func TestBuildDocument_TopLevel(t *testing.T) {
	cfg := loadConfig(t, testConfig)

	doc := buildDoc(t, cfg, selection("latest", nil, nil))

	assert.Equal(t, "3", doc["version"])
	networks := doc["networks"].(map[string]any)
	assert.Equal(t, map[string]any{"external": true}, networks["shared-net"])
	// Pass-through compose settings land at the top level.
	assert.Contains(t, doc, "volumes")
	// Consumed keys never do.
	assert.NotContains(t, doc, "registry")
	assert.NotContains(t, doc, "tags")
}

func TestBuildDocument_PassThroughProperties(t *testing.T) {
	cfg := loadConfig(t, testConfig)

	doc := buildDoc(t, cfg, selection("latest", nil, nil))
	api := doc["services"].(map[string]any)["myns_api"].(map[string]any)

	assert.Equal(t, "myns_api", api["container_name"])
	assert.Equal(t, map[string]any{"API_MODE": "full"}, api["environment"])
	for key := range domain.ReservedServiceKeys {
		assert.NotContains(t, api, key)
	}
}

// =============================================================================
// Deterministic Encoding
// =============================================================================

func TestMarshal_Deterministic(t *testing.T) {
	cfg := loadConfig(t, testConfig)
	sel := selection("latest", nil, nil)

	first, err := Marshal(buildDoc(t, cfg, sel))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		next, err := Marshal(buildDoc(t, cfg, sel))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(next))
	}
}

func TestWriteDocument_RoundTripsThroughServiceNames(t *testing.T) {
	cfg := loadConfig(t, testConfig)
	path := filepath.Join(t.TempDir(), config.ComposeFile)

	doc := buildDoc(t, cfg, selection("latest", nil, nil))
	require.NoError(t, WriteDocument(path, doc))

	names, err := ServiceNames(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"core_db", "myns_api", "myns_legacy", "myns_web"}, names)
}
