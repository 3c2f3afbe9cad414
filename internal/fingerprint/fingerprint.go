// Package fingerprint implements spec §4.5: a deterministic hash of a
// node's declared outputs' metadata, used to detect that a user (or some
// other process) mutated build products outside of the executor between
// runs.
package fingerprint

import (
	"os"
	"sort"

	"github.com/howth-dev/howth/internal/buildgraph"
	"github.com/howth-dev/howth/internal/fs"
	"github.com/howth-dev/howth/internal/globby"
	"github.com/howth-dev/howth/internal/hashing"
)

// SchemaVersion tags the fingerprint encoding.
const SchemaVersion = 1

// Fingerprint is the record described in spec §3 "Cache entry (build)":
// (schema_version, hash, output_count, total_size).
type Fingerprint struct {
	SchemaVersion int    `json:"schemaVersion"`
	Hash          string `json:"hash"`
	OutputCount   int    `json:"outputCount"`
	TotalSize     int64  `json:"totalSize"`
}

type entry struct {
	path     string
	kind     string
	exists   bool
	size     int64
	mtimeMs  int64
	children []string
}

// Compute builds the fingerprint for a node's declared outputs rooted at
// cwd. It returns (nil, nil) when outputs is empty — "None (no outputs
// declared)" per spec §4.5's contract — so callers can distinguish
// "nothing declared" from "computed over zero matches".
func Compute(cwd string, outputs []buildgraph.Output) (*Fingerprint, error) {
	if len(outputs) == 0 {
		return nil, nil
	}

	entries := make([]entry, 0, len(outputs))
	for _, out := range outputs {
		switch out.Kind {
		case buildgraph.OutputFile:
			e, err := statFile(cwd, out.Path)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		case buildgraph.OutputDir:
			dirEntries, err := statDir(cwd, out.Path)
			if err != nil {
				return nil, err
			}
			entries = append(entries, dirEntries...)
		case buildgraph.OutputGlobPattern:
			matches, err := globby.Glob(cwd, []string{out.Path}, nil)
			if err != nil {
				return nil, err
			}
			for _, m := range matches {
				e, err := statFile(cwd, fs.NormalizePath(m))
				if err != nil {
					return nil, err
				}
				entries = append(entries, e)
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	d := hashing.NewDigest()
	var totalSize int64
	for _, e := range entries {
		d.WriteString(e.kind)
		d.WriteString(e.path)
		d.WriteString(boolStr(e.exists))
		d.WriteString(itoa64(e.size))
		d.WriteString(itoa64(e.mtimeMs))
		if e.kind == "directory" {
			for _, c := range e.children {
				d.WriteString(c)
			}
		}
		totalSize += e.size
	}

	return &Fingerprint{
		SchemaVersion: SchemaVersion,
		Hash:          d.Sum(),
		OutputCount:   len(entries),
		TotalSize:     totalSize,
	}, nil
}

func statFile(cwd, relOrAbs string) (entry, error) {
	abs := relOrAbs
	if !isAbs(abs) {
		abs = cwd + string(os.PathSeparator) + abs
	}
	normalized := fs.NormalizePath(abs)
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return entry{path: normalized, kind: "file", exists: false}, nil
		}
		return entry{}, err
	}
	return entry{
		path:    normalized,
		kind:    "file",
		exists:  true,
		size:    info.Size(),
		mtimeMs: info.ModTime().UnixMilli(),
	}, nil
}

func statDir(cwd, relOrAbs string) ([]entry, error) {
	abs := relOrAbs
	if !isAbs(abs) {
		abs = cwd + string(os.PathSeparator) + abs
	}
	normalized := fs.NormalizePath(abs)
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return []entry{{path: normalized, kind: "directory", exists: false}}, nil
		}
		return nil, err
	}

	var children []string
	err = fs.WalkMode(abs, func(name string, isDir bool, _ os.FileMode) error {
		if name == abs {
			return nil
		}
		children = append(children, fs.NormalizePath(name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(children)

	self := entry{
		path:     normalized,
		kind:     "directory",
		exists:   true,
		size:     0,
		mtimeMs:  info.ModTime().UnixMilli(),
		children: children,
	}

	out := []entry{self}
	for _, c := range children {
		childInfo, err := os.Stat(c)
		if err != nil {
			continue
		}
		if childInfo.IsDir() {
			continue
		}
		out = append(out, entry{
			path:    c,
			kind:    "file",
			exists:  true,
			size:    childInfo.Size(),
			mtimeMs: childInfo.ModTime().UnixMilli(),
		})
	}
	return out, nil
}

func isAbs(p string) bool {
	return len(p) > 0 && (p[0] == '/' || (len(p) > 2 && p[1] == ':'))
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func itoa64(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
