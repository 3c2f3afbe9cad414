package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/howth-dev/howth/internal/ipcerr"
)

var errorPrefix = color.New(color.FgRed, color.Bold).SprintFunc()

// exitInternal and exitValidation are the two non-zero exit codes spec
// §6 defines ("0 success / 1 internal error / 2 validation error").
const (
	exitSuccess    = 0
	exitInternal   = 1
	exitValidation = 2
)

// emit prints payload as the single canonical JSON object spec §6's
// JSON mode requires when json is set, otherwise delegates to text for
// a human-readable rendering.
func emit(json_ bool, payload interface{}, text func()) error {
	if json_ {
		raw, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	}
	text()
	return nil
}

// exitCodeFor classifies err per spec §6's exit code table: a decoded
// ipcerr.Error (the daemon validated the request and rejected it) maps
// to 2; anything else (connection failure, a bug) maps to 1.
func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}
	if _, ok := asIpcErr(err); ok {
		return exitValidation
	}
	return exitInternal
}

func asIpcErr(err error) (*ipcerr.Error, bool) {
	e, ok := err.(*ipcerr.Error)
	return e, ok
}

// reportErr prints err to stderr (JSON mode: as a {"error": ...} object
// so stdout still carries at most one JSON value) and returns the exit
// code to use.
func reportErr(jsonMode bool, err error) int {
	code := exitCodeFor(err)
	if jsonMode {
		obj := map[string]string{"message": err.Error()}
		if ie, ok := asIpcErr(err); ok {
			obj["code"] = string(ie.Code)
			obj["message"] = ie.Message
		}
		raw, _ := json.Marshal(map[string]interface{}{"error": obj})
		fmt.Fprintln(os.Stderr, string(raw))
	} else {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorPrefix("howth:"), err)
	}
	return code
}
