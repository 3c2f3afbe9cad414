package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	homedir "github.com/mitchellh/go-homedir"
)

const configFileName = "howth.config.jsonc"

// readConfigFile looks for howth.config.jsonc at repoRoot and returns its
// raw bytes. A missing file is not an error — it just means "no overrides".
func readConfigFile(repoRoot string) ([]byte, bool) {
	raw, err := os.ReadFile(filepath.Join(repoRoot, configFileName))
	if err != nil {
		return nil, false
	}
	return raw, true
}

// defaultSocketPath implements spec §6 "IPC endpoint": a channel-specific
// Unix domain socket path under the system temp dir on POSIX, and a
// `\\.\pipe\howth-<channel>` named-pipe path on Windows (spec §4.11).
// Only the path is produced here; internal/ipc implements just the Unix
// socket transport (see DESIGN.md).
func defaultSocketPath(channel string) string {
	if runtime.GOOS == "windows" {
		return fmt.Sprintf(`\\.\pipe\howth-%s`, channel)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("howth-%s.sock", channel))
}

// UserStateDir implements spec §6 "On-disk layout": "Daemon state:
// <user-state>/howth/<channel>/". Grounded on the teacher's
// internal/config.userConfigPath use of adrg/xdg, generalized from a
// single config.json path to a per-channel state directory; falls back
// to mitchellh/go-homedir when XDG_STATE_HOME can't be resolved (e.g. a
// minimal container environment), matching the teacher's own fallback
// intent for xdg.ConfigFile failures.
func UserStateDir(channel string) (string, error) {
	dir, err := xdg.StateFile(filepath.Join("howth", channel, ".keep"))
	if err == nil {
		return filepath.Dir(dir), nil
	}
	home, homeErr := homedir.Dir()
	if homeErr != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "howth", channel), nil
}

// PackageCacheDir implements spec §6 "Package cache:
// <user-cache>/howth/packages/<name>/<version>/package/…".
func PackageCacheDir(name, version string) (string, error) {
	dir, err := xdg.CacheFile(filepath.Join("howth", "packages", name, version, "package", ".keep"))
	if err != nil {
		return "", err
	}
	return filepath.Dir(dir), nil
}

// ContentStoreDir is the root of the content-addressed tarball blob store
// internal/linker.ContentStore writes into, kept alongside but separate
// from PackageCacheDir's per-name/version layout since the linker
// addresses content by hash rather than by package identity.
func ContentStoreDir() (string, error) {
	dir, err := xdg.CacheFile(filepath.Join("howth", "store", ".keep"))
	if err != nil {
		return "", err
	}
	return filepath.Dir(dir), nil
}
