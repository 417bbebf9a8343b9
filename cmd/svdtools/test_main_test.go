package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svdtools/internal/tester"
)

const timerADCReport = `0 Timer0: Timer 0 global (in Timer)
2 Timer2: Timer 2 global (in Timer)
5 ADC: ADC conversion (in ADC)
Gaps: 1, 3, 4
`

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SVDTOOLS_ROOT", "SVDTOOLS_GAPS", "SVDTOOLS_STRICT", "SVDTOOLS_FORMAT", "SVDTOOLS_WORKERS",
		"SVDTOOLS_VERBOSE", "SVDTOOLS_CACHE", "SVDTOOLS_CACHE_DIR", "SVDTOOLS_CACHE_TTL",
		"SVDTOOLS_CACHE_S3_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func invoke(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func realRoot(t *testing.T) string {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return root
}

func TestInterruptsSingleFile(t *testing.T) {
	isolateEnv(t)
	root := realRoot(t)
	path := tester.Write(t, root, "stm32x.svd", tester.TimerADC())

	code, out, errOut := invoke(t, "interrupts", "--root", root, path)
	require.Equal(t, exitOK, code, errOut)
	assert.Equal(t, timerADCReport, out)

	code, out, _ = invoke(t, "interrupts", "--root", root, "--no-gaps", "stm32x.svd")
	require.Equal(t, exitOK, code)
	assert.Equal(t, `0 Timer0: Timer 0 global (in Timer)
2 Timer2: Timer 2 global (in Timer)
5 ADC: ADC conversion (in ADC)
`, out)
}

func TestInterruptsGapsFromEnvironment(t *testing.T) {
	isolateEnv(t)
	t.Setenv("SVDTOOLS_GAPS", "off")
	root := realRoot(t)
	path := tester.Write(t, root, "stm32x.svd", tester.TimerADC())

	_, out, _ := invoke(t, "interrupts", "--root", root, path)
	assert.NotContains(t, out, "Gaps:")

	_, out, _ = invoke(t, "interrupts", "--root", root, "--gaps", path)
	assert.Contains(t, out, "Gaps: 1, 3, 4")
}

func TestInterruptsDirectory(t *testing.T) {
	isolateEnv(t)
	root := realRoot(t)
	tester.Write(t, root, "a.svd", tester.TimerADC())
	tester.Write(t, root, "b.SVD", tester.SVD("B", tester.Peripheral{
		Name:       "P",
		Interrupts: []tester.IRQ{tester.Interrupt(1, "X", "x")},
	}))
	tester.Write(t, root, ".git/c.svd", tester.TimerADC())
	tester.Write(t, root, "notes.txt", "not a device")

	code, out, errOut := invoke(t, "interrupts", "--root", root, root)
	require.Equal(t, exitOK, code, errOut)
	assert.Equal(t,
		"== STM32X ("+filepath.Join(root, "a.svd")+")\n"+timerADCReport+
			"== B ("+filepath.Join(root, "b.SVD")+")\n1 X: x (in P)\nGaps: 0\n",
		out)
}

func TestInterruptsPartialFailure(t *testing.T) {
	isolateEnv(t)
	root := realRoot(t)
	good := tester.Write(t, root, "good.svd", tester.TimerADC())
	bad := tester.Write(t, root, "bad.svd", tester.SVD("BAD", tester.Peripheral{
		Name:       "P",
		Interrupts: []tester.IRQ{{Name: "X", Value: "abc"}},
	}))

	code, out, errOut := invoke(t, "interrupts", "--root", root, bad, good)
	assert.Equal(t, exitFailure, code)
	assert.Equal(t, "== STM32X ("+good+")\n"+timerADCReport, out)
	assert.Contains(t, errOut, bad)
	assert.Contains(t, errOut, "svd: malformed document")
}

func TestInterruptsDuplicates(t *testing.T) {
	isolateEnv(t)
	root := realRoot(t)
	path := tester.Write(t, root, "dup.svd", tester.SVD("DUP",
		tester.Peripheral{Name: "P1", Interrupts: []tester.IRQ{tester.Interrupt(3, "A", "first")}},
		tester.Peripheral{Name: "P2", Interrupts: []tester.IRQ{tester.Interrupt(3, "B", "second")}},
	))

	code, out, errOut := invoke(t, "interrupts", "--root", root, path)
	require.Equal(t, exitOK, code)
	assert.Equal(t, "3 B: second (in P2)\nGaps: 0, 1, 2\n", out)
	assert.Contains(t, errOut, "interrupt 3 A (in P1) replaced by B (in P2)")

	code, out, errOut = invoke(t, "interrupts", "--root", root, "--strict", path)
	assert.Equal(t, exitFailure, code)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "svd: duplicate interrupt number")
}

func TestInterruptsJSON(t *testing.T) {
	isolateEnv(t)
	root := realRoot(t)
	path := tester.Write(t, root, "stm32x.svd", tester.TimerADC())

	code, out, errOut := invoke(t, "interrupts", "--root", root, "--format", "json", path)
	require.Equal(t, exitOK, code, errOut)

	var doc struct {
		Device     string `json:"device"`
		Interrupts []struct {
			Number int    `json:"number"`
			Name   string `json:"name"`
		} `json:"interrupts"`
		Gaps []int `json:"gaps"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "STM32X", doc.Device)
	require.Len(t, doc.Interrupts, 3)
	assert.Equal(t, "ADC", doc.Interrupts[2].Name)
	assert.Equal(t, []int{1, 3, 4}, doc.Gaps)
}

func TestInterruptsOutsideRoot(t *testing.T) {
	isolateEnv(t)
	base := realRoot(t)
	outside := tester.Write(t, base, "outside.svd", tester.TimerADC())
	require.NoError(t, os.MkdirAll(filepath.Join(base, "root"), 0o755))

	code, out, errOut := invoke(t, "interrupts", "--root", filepath.Join(base, "root"), outside)
	assert.Equal(t, exitFailure, code)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "outside root")
}

func TestInterruptsWithoutRootReadsAnyPath(t *testing.T) {
	isolateEnv(t)
	base := realRoot(t)
	dev := tester.Write(t, base, "dev.svd", tester.TimerADC())
	require.NoError(t, os.MkdirAll(filepath.Join(base, "work"), 0o755))
	t.Chdir(filepath.Join(base, "work"))

	for _, arg := range []string{dev, "../dev.svd"} {
		code, out, errOut := invoke(t, "interrupts", arg)
		require.Equal(t, exitOK, code, errOut)
		assert.Equal(t, timerADCReport, out)
	}
}

func TestRelativePathsStartAtRoot(t *testing.T) {
	isolateEnv(t)
	base := realRoot(t)
	tester.Write(t, base, "devices/x.svd", tester.TimerADC())
	tester.Write(t, base, "devices/dev.yaml", "_include: [inc.yaml]\n")
	tester.Write(t, base, "devices/inc.yaml", "{}\n")
	t.Chdir(base)

	code, out, errOut := invoke(t, "interrupts", "--root", "devices", "x.svd")
	require.Equal(t, exitOK, code, errOut)
	assert.Equal(t, timerADCReport, out)

	code, _, errOut = invoke(t, "makedeps", "--root", "devices", "dev.yaml", "dev.d")
	require.Equal(t, exitOK, code, errOut)
	raw, err := os.ReadFile(filepath.Join(base, "dev.d"))
	require.NoError(t, err)
	assert.Equal(t, "dev.d: "+filepath.Join(base, "devices", "inc.yaml")+"\n", string(raw))
}

func TestInterruptsDiskCache(t *testing.T) {
	isolateEnv(t)
	root := realRoot(t)
	t.Setenv("SVDTOOLS_CACHE_DIR", t.TempDir())
	path := tester.Write(t, root, "stm32x.svd", tester.TimerADC())

	code, out, errOut := invoke(t, "interrupts", "--root", root, "-v", path)
	require.Equal(t, exitOK, code, errOut)
	assert.Equal(t, timerADCReport, out)
	assert.Contains(t, errOut, "cache: 0 memory hits, 0 tier hits, 1 misses, 0 tier errors")

	code, out, errOut = invoke(t, "interrupts", "--root", root, "-v", path)
	require.Equal(t, exitOK, code, errOut)
	assert.Equal(t, timerADCReport, out)
	assert.Contains(t, errOut, "cache: 0 memory hits, 1 tier hits, 0 misses, 0 tier errors")

	_, _, errOut = invoke(t, "interrupts", "--root", root, "-v", "--no-cache", path)
	assert.Contains(t, errOut, "0 tier hits, 1 misses")
}

func TestUsageErrors(t *testing.T) {
	isolateEnv(t)
	root := realRoot(t)
	cases := map[string][]string{
		"no command":   nil,
		"unknown":      {"frobnicate"},
		"no paths":     {"interrupts", "--root", root},
		"bad format":   {"interrupts", "--format", "xml", "a.svd"},
		"bad flag":     {"interrupts", "--nope", "a.svd"},
		"makedeps":     {"makedeps", "only-one.yaml"},
		"patch":        {"patch", "dev.yaml"},
		"missing root": {"interrupts", "--root", filepath.Join(root, "missing"), "a.svd"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			code, out, errOut := invoke(t, args...)
			assert.Equal(t, exitUsage, code)
			assert.Empty(t, out)
			assert.NotEmpty(t, errOut)
		})
	}
}

func TestPatchUnsupported(t *testing.T) {
	_, _, errOut := invoke(t, "patch", "dev.yaml")
	assert.Contains(t, errOut, "not supported")
}

func TestVersion(t *testing.T) {
	code, out, _ := invoke(t, "version")
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "svdtools dev\n", out)
}

func TestMakedeps(t *testing.T) {
	isolateEnv(t)
	root := realRoot(t)
	top := tester.Write(t, root, "dev.yaml", "_include: [common.yaml]\n")
	tester.Write(t, root, "common.yaml", "GPIOA:\n  _include: [gpio.yaml]\n")
	tester.Write(t, root, "gpio.yaml", "{}\n")
	depsFile := filepath.Join(root, "dev.d")

	code, _, errOut := invoke(t, "makedeps", "--root", root, top, depsFile)
	require.Equal(t, exitOK, code, errOut)

	raw, err := os.ReadFile(depsFile)
	require.NoError(t, err)
	assert.Equal(t,
		depsFile+": "+filepath.Join(root, "common.yaml")+" "+filepath.Join(root, "gpio.yaml")+"\n",
		string(raw))

	code, _, errOut = invoke(t, "makedeps", "--root", root, filepath.Join(root, "missing.yaml"), depsFile)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "makedeps:")
}
