// Package registry implements an npm-compatible registry client (spec §6
// "Registry protocol"): packument fetch and tarball download + integrity
// verification. Grounded on the teacher's internal/client package, which
// wraps hashicorp/go-retryablehttp the same way for the Vercel Remote
// Cache API; here it talks to a standard npm registry instead.
package registry

import (
	"context"
	"crypto/sha1" //nolint:gosec // npm's legacy shasum integrity form
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// DefaultRegistry is used when HOWTH_NPM_REGISTRY is unset (spec §6).
const DefaultRegistry = "https://registry.npmjs.org"

// Dist is a single version's distribution metadata.
type Dist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity,omitempty"`
	Shasum    string `json:"shasum,omitempty"`
}

// VersionManifest is one entry in a Packument's "versions" map.
type VersionManifest struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
	PeerDependenciesMeta map[string]struct {
		Optional bool `json:"optional"`
	} `json:"peerDependenciesMeta,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	Dist                 Dist              `json:"dist"`
	Bin                  interface{}       `json:"bin,omitempty"`
	Os                   []string          `json:"os,omitempty"`
	Cpu                  []string          `json:"cpu,omitempty"`
	HasInstallScript     bool              `json:"hasInstallScript,omitempty"`
}

// Packument is the per-package document returned by `GET <registry>/<name>`.
type Packument struct {
	Name     string                     `json:"name"`
	DistTags map[string]string          `json:"dist-tags"`
	Versions map[string]VersionManifest `json:"versions"`
}

// Client fetches packuments and tarballs from an npm-compatible registry.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// NewClient constructs a Client. baseURL defaults to DefaultRegistry when
// empty. Grounded on the teacher's client.NewClient retry configuration
// (RetryMax 2, exponential backoff via retryablehttp.DefaultBackoff).
func NewClient(baseURL string, logger hclog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultRegistry
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &retryablehttp.Client{
			HTTPClient:   &http.Client{Timeout: 30 * time.Second},
			RetryWaitMin: 500 * time.Millisecond,
			RetryWaitMax: 5 * time.Second,
			RetryMax:     2,
			Backoff:      retryablehttp.DefaultBackoff,
			Logger:       logger,
		},
	}
}

// RegistryError wraps a non-2xx/network response from the registry,
// distinguishing "not found" from transport failure (spec §4.3 failure
// modes PKG_NOT_FOUND / PKG_REGISTRY_ERROR).
type RegistryError struct {
	NotFound bool
	Status   int
	Err      error
}

func (e *RegistryError) Error() string {
	if e.NotFound {
		return "package not found in registry"
	}
	return fmt.Sprintf("registry error (status %d): %v", e.Status, e.Err)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// FetchPackument retrieves and decodes the packument for name (npm-encoded:
// scoped names are sent as `@scope%2fname`, matching the registry's own
// URL-escaping requirement).
func (c *Client) FetchPackument(ctx context.Context, name string) (*Packument, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, encodePackageName(name))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building packument request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RegistryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &RegistryError{NotFound: true, Status: resp.StatusCode}
	}
	if resp.StatusCode/100 != 2 {
		return nil, &RegistryError{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	var doc Packument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &RegistryError{Err: errors.Wrap(err, "decoding packument")}
	}
	return &doc, nil
}

func encodePackageName(name string) string {
	if strings.HasPrefix(name, "@") {
		return strings.Replace(name, "/", "%2f", 1)
	}
	return name
}

// FetchTarball downloads dist.Tarball and verifies it against dist.Integrity
// (SRI sha512) or, failing that, dist.Shasum (legacy sha1), per spec §6. It
// returns the raw tarball bytes (gzip-compressed npm tarball), for the
// caller to extract.
func (c *Client) FetchTarball(ctx context.Context, dist Dist) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, dist.Tarball, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building tarball request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RegistryError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &RegistryError{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading tarball body")
	}

	if err := VerifyIntegrity(body, dist); err != nil {
		return nil, err
	}
	return body, nil
}

// VerifyIntegrity checks body against dist's integrity string (preferred)
// or legacy shasum.
func VerifyIntegrity(body []byte, dist Dist) error {
	if dist.Integrity != "" {
		algo, want, err := parseIntegrity(dist.Integrity)
		if err != nil {
			return err
		}
		var got string
		switch algo {
		case "sha512":
			sum := sha512.Sum512(body)
			got = base64.StdEncoding.EncodeToString(sum[:])
		default:
			return fmt.Errorf("unsupported integrity algorithm %q", algo)
		}
		if got != want {
			return fmt.Errorf("integrity mismatch: want %s-%s got %s-%s", algo, want, algo, got)
		}
		return nil
	}
	if dist.Shasum != "" {
		sum := sha1.Sum(body) //nolint:gosec
		got := hex.EncodeToString(sum[:])
		if got != dist.Shasum {
			return fmt.Errorf("shasum mismatch: want %s got %s", dist.Shasum, got)
		}
		return nil
	}
	return nil
}

func parseIntegrity(s string) (algo, value string, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed integrity string %q", s)
	}
	return parts[0], parts[1], nil
}
