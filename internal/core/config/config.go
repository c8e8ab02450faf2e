// Package config loads and validates the topology configuration (config.yml).
// The result is an immutable Config handle constructed once at process start
// and passed to every component; nothing re-reads the backing file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/artpar/stackctl/internal/core/domain"
)

// Well-known file names, all relative to the base directory (or, for the
// template, a dev project's directory).
const (
	ConfigFile      = "config.yml"
	ComposeFile     = "docker-compose.yml"
	ComposeTemplate = "docker-compose-template.yml"
	EnvFile         = "docker-compose.env"
)

// Keys of the docker-compose section consumed by stackctl itself. Everything
// else in that section passes through to the composed document.
var consumedComposeKeys = map[string]bool{
	"build-args":        true,
	"tags":              true,
	"registries-by-tag": true,
	"registry":          true,
	"project":           true,
	"network":           true,
}

// TargetConfig names the target-service slot for the configuration service.
const TargetConfig = "config"

// =============================================================================
// Config
// =============================================================================

// Config is the validated, immutable configuration for one run.
type Config struct {
	baseDir string

	prefixes        domain.Prefixes
	projects        []domain.Project
	composeProject  string
	network         string
	registry        string
	registriesByTag map[string]string
	tags            []string
	buildArgs       any
	passthrough     map[string]any
	requiredOptions []string
	targetServices  map[string]string
}

// BaseDir returns the control repository's base directory.
func (c *Config) BaseDir() string { return c.baseDir }

// EnvFilePath returns the path of the shared environment file.
func (c *Config) EnvFilePath() string { return filepath.Join(c.baseDir, EnvFile) }

// ComposePath returns the path of the generated composed-service document.
func (c *Config) ComposePath() string { return filepath.Join(c.baseDir, ComposeFile) }

// Prefixes returns the configured container-name prefixes.
func (c *Config) Prefixes() domain.Prefixes { return c.prefixes }

// Projects returns all declared projects in configuration order.
func (c *Config) Projects() []domain.Project { return c.projects }

// Services returns every declared service in configuration order.
func (c *Config) Services() []domain.Service {
	var services []domain.Service
	for _, p := range c.projects {
		services = append(services, p.Services...)
	}
	return services
}

// ComposeProject returns the fixed composition project name.
func (c *Config) ComposeProject() string { return c.composeProject }

// Network returns the shared docker network name.
func (c *Config) Network() string { return c.network }

// Tags returns the configured image tags, defaulting to latest.
func (c *Config) Tags() []string {
	if len(c.tags) == 0 {
		return []string{"latest"}
	}
	return c.tags
}

// Registry returns the image registry for the given tag, falling back to the
// base registry when the tag has no dedicated one.
func (c *Config) Registry(tag string) string {
	if reg, ok := c.registriesByTag[tag]; ok {
		return reg
	}
	return c.registry
}

// BuildArgs returns the configured build arguments: either a mapping of
// name to value or a plain list of NAME=value entries, as configured.
func (c *Config) BuildArgs() any { return c.buildArgs }

// RequiredOptions returns option names that must be present in the shared
// environment file.
func (c *Config) RequiredOptions() []string { return c.requiredOptions }

// Passthrough returns the docker-compose settings forwarded verbatim to the
// top level of the composed document.
func (c *Config) Passthrough() map[string]any {
	out := make(map[string]any, len(c.passthrough))
	for k, v := range c.passthrough {
		out[k] = v
	}
	return out
}

// TargetService resolves a target-service slot (such as "config") to the
// service it names. Returns nil when optional and the slot or service is not
// configured.
func (c *Config) TargetService(target string, optional bool) (*domain.Service, error) {
	name, ok := c.targetServices[target]
	if !ok {
		if optional {
			return nil, nil
		}
		return nil, domain.Userf("target service %s is not defined, please define \"target-services\"", target)
	}
	svc := c.FindService(name)
	if svc == nil && !optional {
		return nil, domain.Userf("target service %s refers to unknown service %s", target, name)
	}
	return svc, nil
}

// FindProject returns the project with the given name, or nil.
func (c *Config) FindProject(name string) *domain.Project {
	for i := range c.projects {
		if c.projects[i].Name == name {
			return &c.projects[i]
		}
	}
	return nil
}

// FindService returns the first service with the given name, or nil.
func (c *Config) FindService(name string) *domain.Service {
	for i := range c.projects {
		for j := range c.projects[i].Services {
			if c.projects[i].Services[j].Name == name {
				return &c.projects[i].Services[j]
			}
		}
	}
	return nil
}

// DevProjects filters the declared projects down to the named ones,
// preserving configuration order.
func (c *Config) DevProjects(names []string) []domain.Project {
	var projects []domain.Project
	for _, p := range c.projects {
		for _, name := range names {
			if p.Name == name {
				projects = append(projects, p)
				break
			}
		}
	}
	return projects
}

// =============================================================================
// Loading
// =============================================================================

// Load reads and validates <baseDir>/config.yml. All validation failures are
// user errors naming the offending file and section; loading happens exactly
// once per run.
func Load(baseDir string) (*Config, error) {
	path := filepath.Join(baseDir, ConfigFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.Userf("config file %s does not exist, please copy and modify example", path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, domain.Userf("config file %s is not valid YAML, please copy and modify example", path)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, domain.Userf("config file %s is invalid, please copy and modify example", path)
	}
	top := root.Content[0]

	cfg := &Config{
		baseDir:         baseDir,
		registriesByTag: make(map[string]string),
		passthrough:     make(map[string]any),
		targetServices:  make(map[string]string),
	}

	if err := cfg.loadPrefixes(path, mappingValue(top, "prefixes")); err != nil {
		return nil, err
	}
	if err := cfg.loadCompose(path, mappingValue(top, "docker-compose")); err != nil {
		return nil, err
	}
	if err := cfg.loadProjects(path, mappingValue(top, "projects")); err != nil {
		return nil, err
	}
	if node := mappingValue(top, "required-options"); node != nil {
		if err := node.Decode(&cfg.requiredOptions); err != nil {
			return nil, domain.Userf("config file %s has an invalid \"required-options\" configuration, please see example", path)
		}
	}
	if node := mappingValue(top, "target-services"); node != nil {
		if err := node.Decode(&cfg.targetServices); err != nil {
			return nil, domain.Userf("config file %s has an invalid \"target-services\" configuration, please see example", path)
		}
	}
	return cfg, nil
}

func (c *Config) loadPrefixes(path string, node *yaml.Node) error {
	invalid := domain.Userf("config file %s has an invalid \"prefixes\" configuration, please see example", path)
	if node == nil || node.Kind != yaml.MappingNode {
		return invalid
	}
	var prefixes struct {
		Service string `yaml:"service"`
		Core    string `yaml:"core"`
	}
	if err := node.Decode(&prefixes); err != nil || prefixes.Service == "" || prefixes.Core == "" {
		return invalid
	}
	c.prefixes = domain.Prefixes{Service: prefixes.Service, Core: prefixes.Core}
	return nil
}

func (c *Config) loadCompose(path string, node *yaml.Node) error {
	invalid := domain.Userf("config file %s has an invalid \"docker-compose\" configuration, please see example", path)
	if node == nil || node.Kind != yaml.MappingNode {
		return invalid
	}
	for key, value := range mappingPairs(node) {
		switch key {
		case "project":
			if err := value.Decode(&c.composeProject); err != nil {
				return invalid
			}
		case "network":
			if err := value.Decode(&c.network); err != nil {
				return invalid
			}
		case "registry":
			if err := value.Decode(&c.registry); err != nil {
				return invalid
			}
		case "registries-by-tag":
			if err := value.Decode(&c.registriesByTag); err != nil {
				return invalid
			}
		case "tags":
			if err := value.Decode(&c.tags); err != nil {
				return invalid
			}
		case "build-args":
			var args any
			if err := value.Decode(&args); err != nil {
				return invalid
			}
			c.buildArgs = args
		default:
			var passthrough any
			if err := value.Decode(&passthrough); err != nil {
				return invalid
			}
			c.passthrough[key] = passthrough
		}
	}
	if c.network == "" || c.composeProject == "" || c.registry == "" {
		return invalid
	}
	return nil
}

func (c *Config) loadProjects(path string, node *yaml.Node) error {
	if node == nil || node.Kind != yaml.MappingNode || len(node.Content) == 0 {
		return domain.Userf("config file %s has an invalid \"projects\" configuration, please see example", path)
	}
	for name, value := range mappingPairs(node) {
		project, err := parseProject(path, name, value)
		if err != nil {
			return err
		}
		c.projects = append(c.projects, project)
	}
	return nil
}

func parseProject(path, name string, node *yaml.Node) (domain.Project, error) {
	invalid := domain.Userf("config file %s has an invalid \"projects.%s\" configuration, please see example", path, name)
	if node == nil || node.Kind != yaml.MappingNode {
		return domain.Project{}, invalid
	}

	project := domain.Project{Name: name}
	var servicesNode *yaml.Node
	seen := map[string]bool{}
	for key, value := range mappingPairs(node) {
		seen[key] = true
		switch key {
		case "directory":
			if err := value.Decode(&project.Directory); err != nil {
				return domain.Project{}, invalid
			}
		case "repository":
			if err := value.Decode(&project.Repository); err != nil {
				return domain.Project{}, invalid
			}
		case "services":
			servicesNode = value
		}
	}
	if !seen["directory"] || !seen["repository"] || servicesNode == nil || servicesNode.Kind != yaml.SequenceNode {
		return domain.Project{}, invalid
	}

	for _, svcNode := range servicesNode.Content {
		svc, err := parseService(path, name, svcNode)
		if err != nil {
			return domain.Project{}, err
		}
		project.Services = append(project.Services, svc)
	}
	return project, nil
}

func parseService(path, projectName string, node *yaml.Node) (domain.Service, error) {
	invalid := domain.Userf("config file %s has an invalid \"projects.%s.services\" entry, please see example", path, projectName)
	if node.Kind != yaml.MappingNode {
		return domain.Service{}, invalid
	}

	svc := domain.Service{
		Project: projectName,
		Extra:   make(map[string]any),
	}
	for key, value := range mappingPairs(node) {
		switch key {
		case "name":
			if err := value.Decode(&svc.Name); err != nil {
				return domain.Service{}, invalid
			}
		case "core":
			if err := value.Decode(&svc.Core); err != nil {
				return domain.Service{}, invalid
			}
		case "enable", "disable":
			var raw any
			if err := value.Decode(&raw); err != nil {
				return domain.Service{}, invalid
			}
			gate, err := domain.GateFromConfig(raw)
			if err != nil {
				return domain.Service{}, invalid
			}
			if key == "enable" {
				svc.Enable = gate
			} else {
				svc.Disable = gate
			}
		case "dynamic-options":
			opts, err := parseDynamicOptions(value)
			if err != nil {
				return domain.Service{}, invalid
			}
			svc.DynamicOptions = opts
		case "wait-for-ports":
			if err := value.Decode(&svc.WaitForPorts); err != nil {
				return domain.Service{}, invalid
			}
		default:
			var raw any
			if err := value.Decode(&raw); err != nil {
				return domain.Service{}, invalid
			}
			svc.Extra[key] = raw
		}
	}
	if svc.Name == "" {
		return domain.Service{}, invalid
	}
	return svc, nil
}

func parseDynamicOptions(node *yaml.Node) ([]domain.DynamicOption, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("dynamic-options must be a mapping")
	}
	var opts []domain.DynamicOption
	for key, value := range mappingPairs(node) {
		var values struct {
			Enabled  string `yaml:"enabled"`
			Disabled string `yaml:"disabled"`
		}
		if err := value.Decode(&values); err != nil {
			return nil, err
		}
		opts = append(opts, domain.DynamicOption{Key: key, Enabled: values.Enabled, Disabled: values.Disabled})
	}
	return opts, nil
}

// =============================================================================
// YAML Node Helpers
// =============================================================================

// mappingPairs iterates a mapping node's key/value pairs in document order.
func mappingPairs(node *yaml.Node) func(yield func(string, *yaml.Node) bool) {
	return func(yield func(string, *yaml.Node) bool) {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if !yield(node.Content[i].Value, node.Content[i+1]) {
				return
			}
		}
	}
}

// mappingValue returns the value node for a top-level key, or nil.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for k, v := range mappingPairs(node) {
		if k == key {
			return v
		}
	}
	return nil
}
