package hashing

import (
	"sort"

	"github.com/howth-dev/howth/internal/env"
)

// EnvHash implements spec §4.1 "Env hash over an allowlist": sort the
// allowlist lexicographically, emit "<key>=<value>\0" per key (missing vars
// emit empty value), and hash the concatenation.
func EnvHash(vars env.Map, allowlist []string) string {
	sorted := append([]string(nil), allowlist...)
	sort.Strings(sorted)

	d := NewDigest()
	for _, key := range sorted {
		d.WriteString(key + "=" + vars[key])
	}
	return d.Sum()
}
