package registry

import (
	"crypto/sha512"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyIntegritySha512(t *testing.T) {
	body := []byte("tarball contents")
	sum := sha512.Sum512(body)
	dist := Dist{Integrity: "sha512-" + base64.StdEncoding.EncodeToString(sum[:])}
	assert.NoError(t, VerifyIntegrity(body, dist))
}

func TestVerifyIntegrityMismatch(t *testing.T) {
	body := []byte("tarball contents")
	dist := Dist{Integrity: "sha512-" + base64.StdEncoding.EncodeToString([]byte("wrong"))}
	assert.Error(t, VerifyIntegrity(body, dist))
}

func TestEncodePackageName(t *testing.T) {
	assert.Equal(t, "lodash", encodePackageName("lodash"))
	assert.Equal(t, "@scope%2fname", encodePackageName("@scope/name"))
}
