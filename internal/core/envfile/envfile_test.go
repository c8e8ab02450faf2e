package envfile

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/stackctl/internal/core/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// =============================================================================
// Reconcile
// =============================================================================

func TestReconcile_ReplacesAndAppends(t *testing.T) {
	contents := "ENV_VAR1=val1\nDYNAMIC1=old\n"
	values := []domain.OptionValue{
		{Key: "DYNAMIC1", Value: "new"},
		{Key: "DYNAMIC2", Value: "added"},
	}

	out, changed := Reconcile(contents, values)

	assert.True(t, changed)
	assert.Equal(t, "ENV_VAR1=val1\nDYNAMIC1=new\nDYNAMIC2=added\n", out)
}

func TestReconcile_PreservesOrderAndUnknownLines(t *testing.T) {
	contents := strings.Join([]string{
		"# comment",
		"STATIC_A=1",
		"DYNAMIC1=x",
		"STATIC_B=2",
		"",
		"STATIC_C=3",
	}, "\n") + "\n"

	out, changed := Reconcile(contents, []domain.OptionValue{{Key: "DYNAMIC1", Value: "y"}})

	assert.True(t, changed)
	assert.Equal(t, strings.Join([]string{
		"# comment",
		"STATIC_A=1",
		"DYNAMIC1=y",
		"STATIC_B=2",
		"",
		"STATIC_C=3",
	}, "\n")+"\n", out)
}

func TestReconcile_EmptyValueRemovesLine(t *testing.T) {
	contents := "KEEP=1\nGONE=x\n"

	out, changed := Reconcile(contents, []domain.OptionValue{{Key: "GONE", Value: ""}})

	assert.True(t, changed)
	assert.Equal(t, "KEEP=1\n", out)

	// And it is not re-added afterwards.
	out2, changed2 := Reconcile(out, []domain.OptionValue{{Key: "GONE", Value: ""}})
	assert.False(t, changed2)
	assert.Equal(t, out, out2)
}

func TestReconcile_PrefixMatchOnly(t *testing.T) {
	// A key appearing as a substring of another assignment must not match.
	contents := "NOT_DYNAMIC1_REALLY=keep\nPREFIX_DYNAMIC1=keep\n"

	out, changed := Reconcile(contents, []domain.OptionValue{{Key: "DYNAMIC1", Value: "v"}})

	assert.True(t, changed) // appended
	assert.Equal(t, "NOT_DYNAMIC1_REALLY=keep\nPREFIX_DYNAMIC1=keep\nDYNAMIC1=v\n", out)
}

func TestReconcile_Idempotent(t *testing.T) {
	contents := "ENV_VAR1=val1\n"
	values := []domain.OptionValue{
		{Key: "A", Value: "1"},
		{Key: "B", Value: ""},
		{Key: "C", Value: "3"},
	}

	first, changed := Reconcile(contents, values)
	require.True(t, changed)

	second, changed := Reconcile(first, values)
	assert.False(t, changed)
	assert.Equal(t, first, second)
}

func TestReconcile_DefaultsScenario(t *testing.T) {
	// One project, three gated services with dynamic options, no flags
	// passed: enable-gated services resolve to their disabled values,
	// disable-gated services to their enabled values.
	services := []domain.Service{
		{
			Project: "p1", Name: "dyn1", Enable: domain.OwnNameGate(),
			DynamicOptions: []domain.DynamicOption{
				{Key: "DYNAMIC1_BOTH", Enabled: "enabled", Disabled: "disabled"},
				{Key: "DYNAMIC1_ENABLED", Enabled: "enabled"},
				{Key: "DYNAMIC1_DISABLED", Disabled: "disabled"},
			},
		},
		{
			Project: "p1", Name: "dyn3", Disable: domain.OwnNameGate(),
			DynamicOptions: []domain.DynamicOption{
				{Key: "DYNAMIC3_BOTH", Enabled: "enabled", Disabled: "disabled"},
				{Key: "DYNAMIC3_ENABLED", Enabled: "enabled"},
				{Key: "DYNAMIC3_DISABLED", Disabled: "disabled"},
			},
		},
	}
	sel := domain.Selection{}
	status := domain.EnabledStatus(services, sel)
	values := domain.ResolveDynamicOptions(services, status)

	out, changed := Reconcile("ENV_VAR1=val1\n", values)

	assert.True(t, changed)
	assert.Equal(t, []string{
		"ENV_VAR1=val1",
		"DYNAMIC1_BOTH=disabled",
		"DYNAMIC1_DISABLED=disabled",
		"DYNAMIC3_BOTH=enabled",
		"DYNAMIC3_ENABLED=enabled",
	}, strings.Split(strings.TrimSuffix(out, "\n"), "\n"))
}

// =============================================================================
// Sync
// =============================================================================

func TestSync_WritesOnlyWhenChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docker-compose.env")
	require.NoError(t, os.WriteFile(path, []byte("ENV_VAR1=val1\n"), 0o644))
	values := []domain.OptionValue{{Key: "OPT", Value: "v"}}

	require.NoError(t, Sync(discard(), path, values))
	first, err := os.Stat(path)
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ENV_VAR1=val1\nOPT=v\n", string(raw))

	// A second sync is a byte-for-byte no-op and must not rewrite the file.
	require.NoError(t, Sync(discard(), path, values))
	second, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime())
}

func TestSync_MissingFile(t *testing.T) {
	err := Sync(discard(), filepath.Join(t.TempDir(), "docker-compose.env"), nil)

	require.Error(t, err)
	assert.True(t, domain.IsUserError(err))
	assert.Contains(t, err.Error(), "please create")
}

// =============================================================================
// Required Options
// =============================================================================

func TestCheckRequired(t *testing.T) {
	contents := "OPTION_A=1\n# OPTION_B is documented here\n"

	assert.NoError(t, CheckRequired("env", contents, []string{"OPTION_A", "OPTION_B"}))

	err := CheckRequired("env", contents, []string{"OPTION_C"})
	require.Error(t, err)
	assert.True(t, domain.IsUserError(err))
	assert.Contains(t, err.Error(), "OPTION_C")
}
