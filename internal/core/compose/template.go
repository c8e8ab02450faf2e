package compose

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/template"

	"github.com/artpar/stackctl/internal/core/config"
	"github.com/artpar/stackctl/internal/core/domain"
)

// TemplateContext is the data exposed to a dev project's compose template.
type TemplateContext struct {
	DevProjectNames []string
	// EnabledServices maps every flag-gated service's name to its resolved
	// state, so templates can branch on what else is running.
	EnabledServices map[string]bool
	Tag             string
	Registry        string
	Network         string
	CorePrefix      string
	ServicePrefix   string
}

// NewTemplateContext assembles the rendering context for one invocation.
func NewTemplateContext(cfg *config.Config, sel domain.Selection, status map[domain.ServiceKey]bool) TemplateContext {
	enabled := make(map[string]bool, len(status))
	for key, on := range status {
		enabled[key.Name] = on
	}
	prefixes := cfg.Prefixes()
	return TemplateContext{
		DevProjectNames: sel.DevProjects,
		EnabledServices: enabled,
		Tag:             sel.Tag,
		Registry:        cfg.Registry(sel.Tag),
		Network:         cfg.Network(),
		CorePrefix:      prefixes.Core,
		ServicePrefix:   prefixes.Service,
	}
}

// RenderTemplate renders a dev project's docker-compose-template.yml into its
// docker-compose.yml. Projects without a template are skipped: not every
// project needs dynamic composition. Template syntax errors surface as user
// errors carrying the file and line reported by the template engine.
func RenderTemplate(logger *slog.Logger, projectDir string, ctx TemplateContext) error {
	templatePath := filepath.Join(projectDir, config.ComposeTemplate)
	raw, err := os.ReadFile(templatePath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug("no compose template, skipping generation", "dir", projectDir)
			return nil
		}
		return fmt.Errorf("reading %s: %w", templatePath, err)
	}

	tmpl, err := template.New(config.ComposeTemplate).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return &domain.UserError{
			Msg: fmt.Sprintf("could not render %s: %v", templatePath, err),
			Err: err,
		}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return &domain.UserError{
			Msg: fmt.Sprintf("could not render %s: %v", templatePath, err),
			Err: err,
		}
	}

	outPath := filepath.Join(projectDir, config.ComposeFile)
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	logger.Debug("rendered compose template", "template", templatePath, "out", outPath)
	return nil
}
