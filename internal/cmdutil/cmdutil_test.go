package cmdutil

import (
	"os"
	"testing"

	"github.com/spf13/pflag"
	"gotest.tools/v3/assert"
)

func TestCwdFlagResolvesRepoRoot(t *testing.T) {
	dir := t.TempDir()

	flags := pflag.NewFlagSet("test-flags", pflag.ContinueOnError)
	h := NewHelper("test-version")
	h.AddFlags(flags)

	assert.NilError(t, flags.Set("cwd", dir), "flags.Set")

	base, err := h.GetCmdBase()
	if err != nil {
		t.Fatalf("GetCmdBase: %v", err)
	}
	assert.Equal(t, base.RepoRoot.String(), dir)
}

func TestJSONFlagSuppressesLogOutput(t *testing.T) {
	flags := pflag.NewFlagSet("test-flags", pflag.ContinueOnError)
	h := NewHelper("test-version")
	h.AddFlags(flags)

	assert.NilError(t, flags.Set("json", "true"), "flags.Set")
	assert.NilError(t, flags.Set("verbosity", "1"), "flags.Set")

	base, err := h.GetCmdBase()
	if err != nil {
		t.Fatalf("GetCmdBase: %v", err)
	}
	assert.Equal(t, base.JSON, true)
	// With JSON mode on, getLogger routes output to io.Discard even
	// though verbosity asked for Info level; there's no exported way to
	// inspect the sink directly, so this just confirms constructing the
	// logger doesn't error and carries the expected name.
	assert.Equal(t, base.Logger.Name(), "howth")
}

func TestLogLevelEnvVar(t *testing.T) {
	t.Cleanup(func() { _ = os.Unsetenv(_envLogLevel) })
	assert.NilError(t, os.Setenv(_envLogLevel, "debug"), "Setenv")

	flags := pflag.NewFlagSet("test-flags", pflag.ContinueOnError)
	h := NewHelper("test-version")
	h.AddFlags(flags)

	base, err := h.GetCmdBase()
	if err != nil {
		t.Fatalf("GetCmdBase: %v", err)
	}
	assert.Equal(t, base.Logger.IsDebug(), true)
}

func TestLogLevelEnvVarRejectsInvalidValue(t *testing.T) {
	t.Cleanup(func() { _ = os.Unsetenv(_envLogLevel) })
	assert.NilError(t, os.Setenv(_envLogLevel, "not-a-level"), "Setenv")

	flags := pflag.NewFlagSet("test-flags", pflag.ContinueOnError)
	h := NewHelper("test-version")
	h.AddFlags(flags)

	_, err := h.GetCmdBase()
	assert.ErrorContains(t, err, _envLogLevel)
}
