package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_NoArgsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"sawctl"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stdout.String(), "USAGE")
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"sawctl", "help"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "verify")
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"sawctl", "frobnicate"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "Unknown command")
}

func TestYAMLToJSON(t *testing.T) {
	raw := []byte("saw_id: saw_x\ngraph:\n  nodes:\n    - id: n_start\n      type: start\n")
	out, err := yamlToJSON(raw)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"saw_id":"saw_x"`)
	assert.Contains(t, string(out), `"type":"start"`)
}

func TestYAMLToJSON_InvalidYAML(t *testing.T) {
	_, err := yamlToJSON([]byte("\t- not: [valid"))
	assert.Error(t, err)
}
