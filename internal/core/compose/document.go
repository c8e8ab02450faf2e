// Package compose builds the shared composed-service document and renders
// per-project compose templates for dev projects.
package compose

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/artpar/stackctl/internal/core/config"
	"github.com/artpar/stackctl/internal/core/domain"
)

// BuildDocument merges every enabled service outside the dev projects into
// one composed-service document. Dev projects supply their own documents via
// template rendering, so their services are excluded entirely.
func BuildDocument(cfg *config.Config, sel domain.Selection, status map[domain.ServiceKey]bool) map[string]any {
	registry := cfg.Registry(sel.Tag)
	prefixes := cfg.Prefixes()

	services := make(map[string]any)
	for _, project := range cfg.Projects() {
		if sel.IsDevProject(project.Name) {
			continue
		}
		for _, svc := range project.Services {
			if svc.Gated() && !enabledFor(svc, status) {
				continue
			}
			services[svc.ContainerName(prefixes)] = serviceEntry(svc, cfg, registry, sel.Tag)
		}
	}

	doc := map[string]any{
		"version": "3",
		"networks": map[string]any{
			cfg.Network(): map[string]any{"external": true},
		},
		"services": services,
	}
	for key, value := range cfg.Passthrough() {
		doc[key] = value
	}
	return doc
}

func enabledFor(svc domain.Service, status map[domain.ServiceKey]bool) bool {
	enabled, tracked := status[svc.Key()]
	return !tracked || enabled
}

// serviceEntry builds one service's document entry: the container name, the
// pass-through properties, the interpolated image reference, and the shared
// env file and network injected as defaults when the service does not set its
// own.
func serviceEntry(svc domain.Service, cfg *config.Config, registry, tag string) map[string]any {
	entry := map[string]any{
		"container_name": svc.ContainerName(cfg.Prefixes()),
	}
	for key, value := range svc.Extra {
		if key == domain.ImagePathKey {
			entry["image"] = fmt.Sprintf("%s%v:%s", registry, value, tag)
			continue
		}
		entry[key] = value
	}
	if _, ok := entry["env_file"]; !ok {
		entry["env_file"] = []any{"./" + config.EnvFile}
	}
	if _, ok := entry["networks"]; !ok {
		entry["networks"] = []any{cfg.Network()}
	}
	return entry
}

// WriteDocument persists the document to path.
func WriteDocument(path string, doc map[string]any) error {
	raw, err := Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// Deterministic Encoding
// =============================================================================

// Marshal encodes the document with map keys sorted so that repeated runs
// over the same topology produce byte-identical files.
func Marshal(doc any) ([]byte, error) {
	node, err := sortedNode(doc)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(node)
}

func sortedNode(value any) (*yaml.Node, error) {
	switch v := value.(type) {
	case map[string]any:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
			valueNode, err := sortedNode(v[key])
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, keyNode, valueNode)
		}
		return node, nil
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v {
			itemNode, err := sortedNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, itemNode)
		}
		return node, nil
	default:
		node := &yaml.Node{}
		if err := node.Encode(value); err != nil {
			return nil, err
		}
		return node, nil
	}
}
