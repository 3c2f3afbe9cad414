package cmd

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howth-dev/howth/internal/ipcerr"
)

func TestExitCodeForClassifiesIpcErrAsValidation(t *testing.T) {
	assert.Equal(t, exitSuccess, exitCodeFor(nil))
	assert.Equal(t, exitInternal, exitCodeFor(errors.New("connection refused")))
	assert.Equal(t, exitValidation, exitCodeFor(ipcerr.New(ipcerr.EntryNotFound, "no such entry")))
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	fn()
	w.Close()
	os.Stdout = old
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestEmitJSONPrintsSingleObject(t *testing.T) {
	out := captureStdout(t, func() {
		err := emit(true, map[string]string{"ok": "true"}, func() {
			t.Fatal("text renderer should not run in JSON mode")
		})
		require.NoError(t, err)
	})

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "true", decoded["ok"])
}

func TestEmitTextDelegatesToRenderer(t *testing.T) {
	called := false
	out := captureStdout(t, func() {
		err := emit(false, nil, func() { called = true })
		require.NoError(t, err)
	})
	assert.True(t, called)
	assert.Empty(t, out)
}

func TestReportErrIncludesCodeInJSONMode(t *testing.T) {
	old := os.Stderr
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stderr = w

	code := reportErr(true, ipcerr.New(ipcerr.PkgNotFound, "left-pad not found"))

	w.Close()
	os.Stderr = old
	raw, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, exitValidation, code)
	var decoded struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "left-pad not found", decoded.Error.Message)
	assert.Equal(t, string(ipcerr.PkgNotFound), decoded.Error.Code)
}
