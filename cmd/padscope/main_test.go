package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"padscope/pkg/gamepad"
	"padscope/pkg/protocol"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", filepath.Join(t.TempDir(), "padscope.toml")}, args...)
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func sampleState() gamepad.State {
	st := gamepad.NewState()
	st.Decode([]byte{10, 20, 30, 40, 0x24, 0x05})
	return *st
}

func writeCapture(t *testing.T) string {
	t.Helper()
	var stream []byte
	stream = append(stream, 0x11, 0x7F, 0x22)
	stream = append(stream, protocol.Wrap([]byte{0x01, 10, 20, 30, 40, 0x24, 0x05})...)
	stream = append(stream, protocol.Wrap([]byte{0x05, 0xEE})...)
	stream = append(stream, protocol.Wrap([]byte{0x01, 0x7E, 0x7F, 0x7D, 0x01, 0x08, 0x00})...)
	stream = append(stream, 0x7E, 0x01)

	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, stream, 0o644))
	return path
}

func TestHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--help"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	for _, cmd := range []string{"run", "replay", "mock", "decode"} {
		assert.Contains(t, stdout.String(), cmd)
	}
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI(t, "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "padscope:")
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "padscope.toml")
	require.NoError(t, os.WriteFile(path, []byte("[transport]\nkind = \"usb\"\n"), 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"--config", path, "decode", "7e017f"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "transport.kind")
}

func TestDecodeFramed(t *testing.T) {
	code, stdout, _ := runCLI(t, "decode", "7e 01 0a 14 1e 28 24 05 7f")
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "0x01 current_configuration: 0a 14 1e 28 24 05", lines[0])
	assert.Equal(t, sampleState().String(), lines[1])
}

func TestDecodeBarePayload(t *testing.T) {
	code, stdout, _ := runCLI(t, "decode", "01", "0a141e28", "2405")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, sampleState().String())
}

func TestDecodeErrorTypeHasNoState(t *testing.T) {
	code, stdout, _ := runCLI(t, "decode", "7e050a141e2824057f")
	require.Equal(t, 0, code)
	assert.Equal(t, "0x05 error_invalid_data: 0a 14 1e 28 24 05\n", stdout)

	code, stdout, _ = runCLI(t, "decode", "--any", "7e050a141e2824057f")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, sampleState().String())
}

func TestDecodeRejectsBadInput(t *testing.T) {
	code, _, stderr := runCLI(t, "decode", "zz")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "parse hex")

	code, _, stderr = runCLI(t, "decode", "7e0102")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no complete frame")
}

func TestReplay(t *testing.T) {
	path := writeCapture(t)
	code, stdout, _ := runCLI(t, "replay", "--chunk", "3", path)
	require.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, sampleState().String(), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "LX:126 LY:127 RX:125 RY:  1 | DPAD:NONE | Btns:NONE"), lines[1])
}

func TestReplayFrames(t *testing.T) {
	path := writeCapture(t)
	code, stdout, _ := runCLI(t, "replay", "--frames", path)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "0x05 error_invalid_data: ee\n")
}

func TestRunFileTransportWritesJSONL(t *testing.T) {
	capture := writeCapture(t)
	out := filepath.Join(t.TempDir(), "packets.jsonl")

	code, _, stderr := runCLI(t, "run", "--transport", "file", "--path", capture, "--jsonl", out)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)

	kinds := make([]string, 0, len(lines))
	for _, line := range lines {
		var rec struct {
			Kind string `json:"kind"`
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		kinds = append(kinds, rec.Kind+"/"+rec.Type)
	}
	assert.Equal(t, []string{
		"frame/current_configuration",
		"state/current_configuration",
		"frame/error_invalid_data",
		"frame/current_configuration",
		"state/current_configuration",
	}, kinds)
}

func TestRunRejectsBadFlags(t *testing.T) {
	code, _, stderr := runCLI(t, "run", "--transport", "file")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "transport.path")
}
