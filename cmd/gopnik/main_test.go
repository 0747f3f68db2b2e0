package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Version(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"gopnik", "version"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "gopnik "+version)
}

func TestRun_Help(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"gopnik", "help"}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "process")
	assert.Contains(t, out.String(), "batch")
	assert.Contains(t, out.String(), "validate")
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"gopnik", "frobnicate"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "Unknown command")
}

func TestRun_NoArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"gopnik"}, &out, &errOut)
	assert.Equal(t, 2, code)
}

func TestRun_ProcessMissingArg(t *testing.T) {
	var out, errOut bytes.Buffer
	code := Run([]string{"gopnik", "process"}, &out, &errOut)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut.String(), "Usage")
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	content := fmt.Sprintf("storage_dir: %s\nprofiles_dir: %s\n",
		filepath.Join(base, "storage"), filepath.Join(base, "profiles"))
	path := filepath.Join(base, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.NRGBA{R: 250, G: 250, B: 250, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "scan.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestRun_ProcessAndValidate(t *testing.T) {
	cfgPath := writeTestConfig(t)
	imgPath := writeTestImage(t)

	var out, errOut bytes.Buffer
	code := Run([]string{"gopnik", "process", "-config", cfgPath, imgPath}, &out, &errOut)
	require.Equal(t, 0, code, "stderr: %s", errOut.String())
	assert.Contains(t, out.String(), "Redacted:")

	redacted := filepath.Join(filepath.Dir(imgPath), "redacted_scan.png")
	_, err := os.Stat(redacted)
	require.NoError(t, err)

	out.Reset()
	errOut.Reset()
	code = Run([]string{"gopnik", "validate", "-config", cfgPath, redacted}, &out, &errOut)
	assert.Equal(t, 0, code, "stderr: %s", errOut.String())
	assert.Contains(t, out.String(), "Result: valid")
}

func TestRun_ProfileList(t *testing.T) {
	cfgPath := writeTestConfig(t)

	var out, errOut bytes.Buffer
	code := Run([]string{"gopnik", "profile", "list", "-config", cfgPath}, &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "default")
}
