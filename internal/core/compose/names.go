package compose

import (
	"context"
	"os"
	"sort"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"

	"github.com/artpar/stackctl/internal/core/domain"
)

// ServiceNames lists the services declared by a compose document on disk, in
// sorted order. It is used to scope staged startup calls to the services a
// particular document contributes.
func ServiceNames(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var dict map[string]any
	if err := yaml.Unmarshal(raw, &dict); err != nil {
		return nil, domain.Userf("could not parse %s: %v", path, err)
	}
	if dict == nil {
		return nil, domain.Userf("could not parse %s: empty document", path)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{Filename: path, Content: raw, Config: dict},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("stackctl", false)
		// The documents are read only for their service names; leave
		// interpolation and validation to the composition tool itself.
		opts.SkipValidation = true
		opts.SkipConsistencyCheck = true
		opts.SkipResolveEnvironment = true
		opts.SkipInterpolation = true
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, domain.Userf("could not parse %s: %v", path, err)
	}

	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
