package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/t4go/internal/config"
	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/internal/source"
	"github.com/conneroisu/t4go/internal/version"
	"github.com/conneroisu/t4go/internal/watcher"
)

func init() {
	color.NoColor = true
}

// testCommand returns a command whose output is captured.
func testCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	return cmd, &stdout, &stderr
}

func resetTransformFlags() {
	transformOutput = ""
	transformParams = nil
	transformSession = ""
	transformIncludes = nil
	transformReferences = nil
	transformParallel = 0
	transformInProcess = false
	transformWatch = false
	transformLinePragmas = ""
}

func resetPreprocessFlags() {
	preprocessClass = ""
	preprocessNamespace = ""
	preprocessOutput = ""
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestEnumValue(t *testing.T) {
	var mode string
	v := newEnumValue(&mode, config.PragmasAbsolute, config.PragmasRelative, config.PragmasOff)

	assert.Equal(t, "absolute|relative|off", v.Type())
	require.NoError(t, v.Set(" Relative "))
	assert.Equal(t, "relative", mode)
	assert.Equal(t, "relative", v.String())

	err := v.Set("sometimes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absolute, relative, off")
	assert.Equal(t, "relative", mode)
}

func TestLinePragmasFlag(t *testing.T) {
	defer resetTransformFlags()
	flag := transformCmd.Flags().Lookup("line-pragmas")
	require.NotNil(t, flag)

	require.NoError(t, transformCmd.Flags().Set("line-pragmas", "off"))
	assert.Equal(t, "off", transformLinePragmas)
	assert.Error(t, transformCmd.Flags().Set("line-pragmas", "on"))
}

func TestAddFlagValidation(t *testing.T) {
	var n int
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().IntVar(&n, "parallel", 0, "")
	AddFlagValidation(cmd, "parallel", ValidatePositive)
	AddFlagValidation(cmd, "missing", ValidatePositive)

	assert.Error(t, cmd.Flags().Set("parallel", "0"))
	assert.Error(t, cmd.Flags().Set("parallel", "many"))
	require.NoError(t, cmd.Flags().Set("parallel", "4"))
	assert.Equal(t, 4, n)
}

func TestValidateFileExists(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "values.yaml")
	writeFile(t, existing, "a: 1\n")

	assert.NoError(t, ValidateFileExists(""))
	assert.NoError(t, ValidateFileExists(existing))
	assert.Error(t, ValidateFileExists(existing+".missing"))
}

func TestParseParams(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", args: nil, want: map[string]string{}},
		{name: "simple", args: []string{"Name=World"}, want: map[string]string{"Name": "World"}},
		{name: "value with equals", args: []string{"Expr=a=b"}, want: map[string]string{"Expr": "a=b"}},
		{name: "empty value", args: []string{"Name="}, want: map[string]string{"Name": ""}},
		{name: "qualified", args: []string{"proc/Count=3"}, want: map[string]string{"proc/Count": "3"}},
		{name: "missing equals", args: []string{"Name"}, wantErr: true},
		{name: "missing name", args: []string{"=x"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseParams(tc.args)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLoadSession(t *testing.T) {
	dir := t.TempDir()
	yamlFile := filepath.Join(dir, "values.yaml")
	writeFile(t, yamlFile, "Name: World\nCount: 3\nTags: [a, b]\n")
	tomlFile := filepath.Join(dir, "values.toml")
	writeFile(t, tomlFile, "Name = \"World\"\nCount = 3\n")
	jsonFile := filepath.Join(dir, "values.json")
	writeFile(t, jsonFile, `{"Name": "World", "Enabled": true}`)
	emptyFile := filepath.Join(dir, "empty.yml")
	writeFile(t, emptyFile, "")
	badFile := filepath.Join(dir, "bad.toml")
	writeFile(t, badFile, "Name = \n")
	iniFile := filepath.Join(dir, "values.ini")
	writeFile(t, iniFile, "Name=World\n")

	session, err := loadSession("")
	require.NoError(t, err)
	assert.Empty(t, session)

	session, err = loadSession(yamlFile)
	require.NoError(t, err)
	assert.Equal(t, "World", session["Name"])
	assert.Equal(t, 3, session["Count"])
	assert.Equal(t, []interface{}{"a", "b"}, session["Tags"])

	session, err = loadSession(tomlFile)
	require.NoError(t, err)
	assert.Equal(t, "World", session["Name"])
	assert.Equal(t, int64(3), session["Count"])

	session, err = loadSession(jsonFile)
	require.NoError(t, err)
	assert.Equal(t, true, session["Enabled"])

	session, err = loadSession(emptyFile)
	require.NoError(t, err)
	assert.NotNil(t, session)

	_, err = loadSession(badFile)
	assert.ErrorContains(t, err, "invalid TOML")
	_, err = loadSession(iniFile)
	assert.ErrorContains(t, err, "unsupported session file")
	_, err = loadSession(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read session file")
}

func TestSessionWithParams(t *testing.T) {
	session := map[string]interface{}{"Name": "file", "Count": 3}
	got := sessionWithParams(session, map[string]string{"Name": "flag", "proc/Mood": "happy"})

	assert.Equal(t, map[string]interface{}{"Name": "flag", "Count": 3, "Mood": "happy"}, got)
	assert.Equal(t, "file", session["Name"])
}

func TestPrintDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	printDiagnostics(&buf, []*errors.Diagnostic{
		{Severity: errors.SeverityWarning, Code: "T4G2001", Message: "unused", Location: source.NewLocation("a.tt", 1, 2)},
		{Severity: errors.SeverityError, Code: errors.CodeRuntimeNotFound, Message: "no toolchain", Location: source.NewLocation("a.tt", 3, 4)},
	})

	out := buf.String()
	assert.Contains(t, out, "a.tt(1,2): warning T4G2001: unused\n")
	assert.Contains(t, out, "a.tt(3,4): error "+errors.CodeRuntimeNotFound+": no toolchain\n")
	assert.Contains(t, out, "Suggestions:")
	assert.Contains(t, out, "t4go sdk")

	buf.Reset()
	printDiagnostics(&buf, nil)
	assert.Empty(t, buf.String())
}

func TestReportFailure(t *testing.T) {
	var buf bytes.Buffer
	crash := errors.NewRuntimeError(errors.CodeChildProcess, "template process crashed", nil, true)
	reportFailure(&buf, "a.tt", errors.Wrap(crash, errors.ErrorTypeRuntime, "", "execute"))
	assert.True(t, strings.HasPrefix(buf.String(), "a.tt: fatal: "))

	buf.Reset()
	reportFailure(&buf, "b.tt", errors.NewRuntimeError(errors.CodeTransformFailed, "panic", nil, false))
	assert.True(t, strings.HasPrefix(buf.String(), "b.tt: "))
	assert.NotContains(t, buf.String(), "fatal:")
}

func TestCountErrors(t *testing.T) {
	assert.Equal(t, 1, countErrors([]*errors.Diagnostic{
		{Severity: errors.SeverityWarning},
		{Severity: errors.SeverityError},
		{Severity: errors.SeverityInfo},
	}))
}

func TestAffected(t *testing.T) {
	byPath := map[string]string{
		"/t/a.tt": "a.tt",
		"/t/b.tt": "b.tt",
		"/t/c.tt": "c.tt",
	}
	deps := map[string][]string{
		"/t/a.tt": {"/t/shared.ttinclude"},
		"/t/b.tt": {"/t/shared.ttinclude", "/t/other.ttinclude"},
		"/t/c.tt": nil,
	}

	tests := []struct {
		name   string
		events []watcher.ChangeEvent
		want   []string
	}{
		{"template", []watcher.ChangeEvent{{Type: watcher.EventTypeModified, Path: "/t/c.tt"}}, []string{"c.tt"}},
		{"shared include", []watcher.ChangeEvent{{Type: watcher.EventTypeModified, Path: "/t/shared.ttinclude"}}, []string{"a.tt", "b.tt"}},
		{"own include", []watcher.ChangeEvent{{Type: watcher.EventTypeDeleted, Path: "/t/other.ttinclude"}}, []string{"b.tt"}},
		{"unrelated", []watcher.ChangeEvent{{Type: watcher.EventTypeCreated, Path: "/t/readme.md"}}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, affected(tc.events, deps, byPath))
		})
	}
}

func TestApplyTransformFlags(t *testing.T) {
	defer resetTransformFlags()
	dir := t.TempDir()

	transformLinePragmas = config.PragmasOff
	transformParallel = 3
	transformInProcess = true
	transformIncludes = []string{dir}
	transformReferences = []string{"example.com/lib@v1.0.0"}

	cfg := config.Default()
	require.NoError(t, applyTransformFlags(cfg))
	assert.Equal(t, config.PragmasOff, cfg.Engine.LinePragmas)
	assert.Equal(t, 3, cfg.Transform.Parallel)
	assert.Equal(t, config.CompilerInProcess, cfg.Engine.Compiler)
	assert.Contains(t, cfg.Paths.Include, dir)
	assert.Contains(t, cfg.Paths.References, "example.com/lib@v1.0.0")
}

func TestRunTransformRejectsOutputForManyTemplates(t *testing.T) {
	defer resetTransformFlags()
	transformOutput = "out.txt"

	cmd, _, _ := testCommand()
	err := runTransform(cmd, []string{"a.tt", "b.tt"})
	assert.ErrorContains(t, err, "single file")
}

func TestRunTransformReportsParseErrors(t *testing.T) {
	defer resetTransformFlags()
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "bad.tt")
	writeFile(t, tmpl, "ok <# unterminated")

	cmd, stdout, stderr := testCommand()
	err := runTransform(cmd, []string{tmpl})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 templates failed")
	assert.Contains(t, stderr.String(), "bad.tt")
	assert.Contains(t, stderr.String(), errors.CodeUnterminatedTag)
	assert.Empty(t, stdout.String())
	assert.NoFileExists(t, filepath.Join(dir, "bad.txt"))
}

func TestRunTransformMissingTemplate(t *testing.T) {
	defer resetTransformFlags()

	cmd, _, stderr := testCommand()
	err := runTransform(cmd, []string{filepath.Join(t.TempDir(), "missing.tt")})
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "reading template")
}

func TestRunTransformBadParam(t *testing.T) {
	defer resetTransformFlags()
	transformParams = []string{"novalue"}

	cmd, _, _ := testCommand()
	err := runTransform(cmd, []string{"a.tt"})
	assert.ErrorContains(t, err, "expected name=value")
}

func TestRunTransform(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping toolchain test in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain not available")
	}
	defer resetTransformFlags()

	dir := t.TempDir()
	tmpl := filepath.Join(dir, "greeting.tt")
	writeFile(t, tmpl, "<#@ output extension=\".md\" #>Hello, <#= \"World\" #>!")

	cmd, _, stderr := testCommand()
	err := runTransform(cmd, []string{tmpl})
	if err != nil && strings.Contains(stderr.String(), "go: ") {
		t.Skipf("module dependencies unavailable: %s", stderr.String())
	}
	require.NoError(t, err, stderr.String())

	data, err := os.ReadFile(filepath.Join(dir, "greeting.md"))
	require.NoError(t, err)
	assert.Equal(t, "Hello, World!", string(data))
}

func TestRunPreprocess(t *testing.T) {
	defer resetPreprocessFlags()
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "user_profile.tt")
	writeFile(t, tmpl, "Hello, <#= \"World\" #>!")

	cmd, _, stderr := testCommand()
	require.NoError(t, runPreprocess(cmd, []string{tmpl}), stderr.String())

	data, err := os.ReadFile(filepath.Join(dir, "user_profile.go"))
	require.NoError(t, err)
	src := string(data)
	assert.Contains(t, src, "package templates")
	assert.Contains(t, src, "UserProfile")
}

func TestRunPreprocessToStdout(t *testing.T) {
	defer resetPreprocessFlags()
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "page.tt")
	writeFile(t, tmpl, "Hello")
	preprocessClass = "Page"
	preprocessNamespace = "views"
	preprocessOutput = "-"

	cmd, stdout, _ := testCommand()
	require.NoError(t, runPreprocess(cmd, []string{tmpl}))
	assert.Contains(t, stdout.String(), "package views")
	assert.Contains(t, stdout.String(), "Page")
	assert.NoFileExists(t, filepath.Join(dir, "page.go"))
}

func TestRunPreprocessErrors(t *testing.T) {
	defer resetPreprocessFlags()
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "vb.tt")
	writeFile(t, tmpl, "<#@ template language=\"VB\" #>Hello")

	cmd, _, stderr := testCommand()
	err := runPreprocess(cmd, []string{tmpl})
	assert.ErrorContains(t, err, "preprocessing failed")
	assert.Contains(t, stderr.String(), "error")
	assert.NoFileExists(t, filepath.Join(dir, "vb.go"))
}

func TestWriteVersion(t *testing.T) {
	info := version.BuildInfo{
		Version:   "v1.2.3",
		Commit:    "0123456789abcdef",
		BuildTime: time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
		GoVersion: "go1.24.4",
		Platform:  "linux/amd64",
	}

	var buf bytes.Buffer
	require.NoError(t, writeVersion(&buf, info, "text", true))
	assert.Equal(t, "t4go v1.2.3 (0123456)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeVersion(&buf, info, "text", false))
	assert.Contains(t, buf.String(), "Version:  v1.2.3\n")
	assert.Contains(t, buf.String(), "Built:    2024-05-01T10:20:30Z\n")

	buf.Reset()
	require.NoError(t, writeVersion(&buf, info, "json", false))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "v1.2.3", decoded["version"])
	assert.Equal(t, "linux/amd64", decoded["platform"])

	buf.Reset()
	require.NoError(t, writeVersion(&buf, info, "yaml", false))
	assert.Contains(t, buf.String(), "version: v1.2.3")

	assert.ErrorContains(t, writeVersion(&buf, info, "xml", false), "unsupported format")
}

func TestWriteSDKInfo(t *testing.T) {
	info := sdkInfo{
		Kind:               "modules",
		Version:            "1.22.3",
		Root:               "/usr/local/go",
		Go:                 "/usr/local/go/bin/go",
		MaxLanguageVersion: "1.22",
	}

	var buf bytes.Buffer
	require.NoError(t, writeSDKInfo(&buf, info, "text"))
	assert.Contains(t, buf.String(), "Kind:     modules\n")
	assert.Contains(t, buf.String(), "Language: 1.22\n")
	assert.NotContains(t, buf.String(), "Runtime module")

	buf.Reset()
	require.NoError(t, writeSDKInfo(&buf, info, "json"))
	assert.Contains(t, buf.String(), `"max_language_version": "1.22"`)
	assert.NotContains(t, buf.String(), "contract_dir")

	buf.Reset()
	require.NoError(t, writeSDKInfo(&buf, info, "yaml"))
	assert.Contains(t, buf.String(), "root: /usr/local/go")

	assert.Error(t, writeSDKInfo(&buf, info, "table"))
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"transform", "preprocess", "sdk", "version"} {
		assert.True(t, names[name], "missing command %s", name)
	}
}
