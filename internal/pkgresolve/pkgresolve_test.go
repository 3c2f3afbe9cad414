package pkgresolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSpecPlain(t *testing.T) {
	p := parseSpec("lodash", "^4.0.0", 1)
	assert.Equal(t, "lodash", p.name)
	assert.Equal(t, "lodash", p.real)
	assert.Equal(t, "^4.0.0", p.spec)
}

func TestParseSpecNpmAlias(t *testing.T) {
	p := parseSpec("string-width-cjs", "npm:string-width@^4.2.0", 1)
	assert.Equal(t, "string-width-cjs", p.name)
	assert.Equal(t, "string-width", p.real)
	assert.Equal(t, "^4.2.0", p.spec)
}

func TestSatisfiedByAny(t *testing.T) {
	assert.True(t, satisfiedByAny([]string{"1.2.0", "2.0.0"}, "^1.0.0"))
	assert.False(t, satisfiedByAny([]string{"2.0.0"}, "^1.0.0"))
}
