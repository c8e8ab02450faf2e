// Package envfile reconciles the shared environment file against the
// resolved dynamic-option values. Reconciliation is line oriented, order
// preserving, and idempotent: running it twice with the same inputs yields
// byte-identical contents.
package envfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/artpar/stackctl/internal/core/domain"
)

// Read loads the shared environment file. A missing file is a user error
// with a remediation hint, since the file seeds every project's runtime
// configuration.
func Read(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.Userf(
				"please create %s containing env vars for project config, this will be used to "+
					"configure each project. The %s.example file may be used as a template",
				path, filepath.Base(path))
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(raw), nil
}

// CheckRequired verifies that every configured required option appears
// somewhere in the file contents. This is a plain presence check, independent
// of dynamic options.
func CheckRequired(path, contents string, required []string) error {
	for _, option := range required {
		if !strings.Contains(contents, option) {
			return domain.Userf("the %s file must include the %s option", path, option)
		}
	}
	return nil
}

// Reconcile rewrites every line assigning a known dynamic option to the
// resolved value, drops lines whose resolved value is empty, passes all other
// lines through untouched, and appends any option never seen. It reports
// whether anything changed.
//
// A line matches an option only by the exact "KEY=" prefix; substring hits
// elsewhere in the line are ignored.
func Reconcile(contents string, values []domain.OptionValue) (string, bool) {
	byKey := make(map[string]string, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		byKey[v.Key] = v.Value
	}

	var out []string
	changed := false
	for _, line := range splitLines(contents) {
		key, matched := matchOption(line, byKey)
		if !matched {
			out = append(out, line)
			continue
		}
		seen[key] = true
		value := byKey[key]
		if value == "" {
			// Option removed.
			changed = true
			continue
		}
		next := key + "=" + value
		if next != line {
			changed = true
		}
		out = append(out, next)
	}

	for _, v := range values {
		if seen[v.Key] || v.Value == "" {
			continue
		}
		out = append(out, v.Key+"="+v.Value)
		changed = true
	}

	return strings.Join(out, "\n") + "\n", changed
}

// Sync reconciles the environment file on disk, writing it back only when a
// line actually changed so repeated runs leave the file untouched.
func Sync(logger *slog.Logger, path string, values []domain.OptionValue) error {
	contents, err := Read(path)
	if err != nil {
		return err
	}
	next, changed := Reconcile(contents, values)
	if !changed {
		logger.Debug("environment file already up to date", "path", path)
		return nil
	}
	logger.Info("updating dynamic options", "path", path, "options", len(values))
	if err := os.WriteFile(path, []byte(next), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func splitLines(contents string) []string {
	lines := strings.Split(contents, "\n")
	// A trailing newline is file formatting, not an empty entry.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

func matchOption(line string, byKey map[string]string) (string, bool) {
	eq := strings.IndexByte(line, '=')
	if eq <= 0 {
		return "", false
	}
	key := line[:eq]
	_, ok := byKey[key]
	return key, ok
}
