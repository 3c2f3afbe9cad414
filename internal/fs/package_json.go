package fs

import "encoding/json"

// PackageJSON is the subset of a package.json the daemon's components need:
// the package resolver reads Dependencies/OptionalDependencies/DevDependencies
// and PeerDependencies (spec §4.3), the build graph reads Scripts (spec
// §4.6), and the linker reads Bin and the Name/Version identity (spec §4.4).
type PackageJSON struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Scripts              map[string]string `json:"scripts"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies       map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	PeerDependenciesMeta map[string]struct {
		Optional bool `json:"optional"`
	} `json:"peerDependenciesMeta"`
	Bin interface{} `json:"bin"`
	Os  []string    `json:"os"`
	Cpu []string    `json:"cpu"`
	Main string     `json:"main"`
	Exports interface{} `json:"exports"`
	Imports map[string]interface{} `json:"imports"`
	Type string `json:"type"`
}

// ReadPackageJSON reads and parses the package.json at path.
func ReadPackageJSON(path AbsolutePath) (*PackageJSON, error) {
	b, err := path.ReadFile()
	if err != nil {
		return nil, err
	}
	return UnmarshalPackageJSON(b)
}

// UnmarshalPackageJSON decodes a byte slice into a PackageJSON.
func UnmarshalPackageJSON(data []byte) (*PackageJSON, error) {
	pkgJSON := &PackageJSON{}
	if err := json.Unmarshal(data, pkgJSON); err != nil {
		return nil, err
	}
	return pkgJSON, nil
}

// BinEntries normalizes the 'bin' field (string, or map of name->path) into
// a map of binary name to relative script path, for the linker (spec §4.4).
func (p *PackageJSON) BinEntries() map[string]string {
	out := map[string]string{}
	switch v := p.Bin.(type) {
	case string:
		if p.Name != "" {
			name := p.Name
			if i := lastSlash(name); i >= 0 {
				name = name[i+1:]
			}
			out[name] = v
		}
	case map[string]interface{}:
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
