// Package env provides the environment-variable map used as input both to
// content hashing (spec §4.1 "Env hash") and to subprocess execution (spec
// §5 "Subprocess isolation").
package env

import (
	"os"
	"sort"
	"strings"
)

// Map is a map of env variables to their values.
type Map map[string]string

// FromOS returns a Map populated from the current process environment.
func FromOS() Map {
	m := make(Map)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// Names returns the sorted list of keys.
func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// FromAllowlist projects m down to only the keys named in allowlist,
// emitting an empty string for names that are absent (spec §4.1: "missing
// vars emit empty value").
func (m Map) FromAllowlist(allowlist []string) Map {
	out := make(Map, len(allowlist))
	for _, name := range allowlist {
		out[name] = m[name]
	}
	return out
}

// Pairs renders the map deterministically as sorted "k=v" pairs, suitable
// for hashing or for building a subprocess's environment.
func (m Map) Pairs() []string {
	pairs := make([]string, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}
