package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"keyrelay/internal/secrets"
	"keyrelay/internal/security"
)

// executeRoot runs the root command with args and captured output.
func executeRoot(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCommand(newBuildMeta("1.2.3", "linux", "amd64"))
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// useTestSecrets points the cli and daemon at an empty secrets store in a temp dir.
func useTestSecrets(t *testing.T) {
	t.Helper()
	t.Setenv(secrets.PassphraseEnv, "keyrelay-main-test")
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	old := daemonOpenSecrets
	daemonOpenSecrets = func() (secrets.Store, error) {
		return secrets.NewFileStoreWithKey(filepath.Join(dir, ".secrets"), secrets.DeriveKeyFromPassphrase("keyrelay-main-test"))
	}
	t.Cleanup(func() { daemonOpenSecrets = old })
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyrelay.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// =============================================================================
// Build metadata and root command
// =============================================================================

func TestBuildMeta_String_ShouldIncludeVersionAndPlatform(t *testing.T) {
	if got := newBuildMeta("0.3.0", "linux", "arm64").String(); got != "keyrelay 0.3.0 linux/arm64" {
		t.Errorf("got %q", got)
	}
	bm := newBuildMeta("dev", "", "")
	if bm.GoOS == "" || bm.GoArch == "" {
		t.Errorf("platform defaults missing: %+v", bm)
	}
}

func TestRootCommand_WhenVersionFlag_ShouldPrintBuildMeta(t *testing.T) {
	out, _, err := executeRoot(t, "--version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "keyrelay 1.2.3 linux/amd64\n" {
		t.Errorf("out = %q", out)
	}
}

func TestRootCommand_ShouldRegisterSubcommands(t *testing.T) {
	root := newRootCommand(newBuildMeta("x", "", ""))
	for _, name := range []string{"serve", "check", "status", "complete", "config", "secrets", "ledger"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
}

func TestGetVersion_WhenLdflagSet_ShouldPreferIt(t *testing.T) {
	old := version
	defer func() { version = old }()
	version = "9.9.9"
	if got := getVersion(); got != "9.9.9" {
		t.Errorf("got %q", got)
	}
}

// =============================================================================
// Subcommands through cobra
// =============================================================================

func TestCheckCommand_WhenKeysFromEnv_ShouldSucceed(t *testing.T) {
	useTestSecrets(t)
	t.Setenv("OPENAI_API_KEYS", "sk-test-aaaa-1111,sk-test-bbbb-2222")
	path := writeTestConfig(t, `{"gateway":{"auth":{"authToken":"tok"}}}`)
	out, _, err := executeRoot(t, "check", "-c", path)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 key(s)") || strings.Contains(out, "sk-test-aaaa-1111") {
		t.Errorf("out = %s", out)
	}
}

func TestCheckCommand_WhenNoKeys_ShouldReturnExitCode1(t *testing.T) {
	useTestSecrets(t)
	t.Setenv("OPENAI_API_KEYS", "")
	path := writeTestConfig(t, `{}`)
	_, _, err := executeRoot(t, "check", "--config", path)
	var ec exitCodeErr
	if !errors.As(err, &ec) || ec.ExitCode() != 1 {
		t.Errorf("err = %v, want exit 1", err)
	}
}

func TestCompleteCommand_ShouldJoinArgsIntoPrompt(t *testing.T) {
	useTestSecrets(t)
	t.Setenv("OPENAI_API_KEYS", "")
	path := writeTestConfig(t, `{"pool":{"provider":"local","apiKeys":"sk-test-aaaa-1111"}}`)
	out, errOut, err := executeRoot(t, "complete", "-c", path, "hello", "there")
	if err != nil {
		t.Fatalf("complete: %v\n%s", err, errOut)
	}
	if out != "[sk-t...1111] hello there\n" {
		t.Errorf("out = %q", out)
	}
}

func TestConfigCommand_SetThenGet(t *testing.T) {
	path := writeTestConfig(t, `{}`)
	if _, errOut, err := executeRoot(t, "config", "set", "gateway.port", "9191", "-c", path); err != nil {
		t.Fatalf("set: %v %s", err, errOut)
	}
	out, _, err := executeRoot(t, "config", "get", "gateway.port", "-c", path)
	if err != nil || out != "9191\n" {
		t.Errorf("get: out = %q, err = %v", out, err)
	}
}

func TestExitCodeErr_ShouldCarryCode(t *testing.T) {
	err := exitOn(3)
	var ec interface{ ExitCode() int }
	if !errors.As(err, &ec) || ec.ExitCode() != 3 || err.Error() != "exit 3" {
		t.Errorf("err = %v", err)
	}
	if exitOn(0) != nil {
		t.Error("exitOn(0) should be nil")
	}
}

// =============================================================================
// runApp
// =============================================================================

func TestRunApp_WhenRunningAsRoot_ShouldReturn2(t *testing.T) {
	t.Setenv(security.AllowRootEnv, "")
	old := daemonEUIDGetter
	defer func() { daemonEUIDGetter = old }()
	daemonEUIDGetter = func() int { return 0 }

	if code := runApp([]string{"keyrelay", "serve"}); code != 2 {
		t.Errorf("code = %d, want 2", code)
	}
}

func TestRunApp_WhenNoKeysConfigured_ShouldReturn1(t *testing.T) {
	useTestSecrets(t)
	t.Setenv("OPENAI_API_KEYS", "")
	oldEUID, oldLog := daemonEUIDGetter, daemonLogWriter
	defer func() { daemonEUIDGetter, daemonLogWriter = oldEUID, oldLog }()
	daemonEUIDGetter = func() int { return 1000 }
	daemonLogWriter = &bytes.Buffer{}

	path := writeTestConfig(t, `{"gateway":{"port":0}}`)
	if code := runApp([]string{"keyrelay", "serve", "-c", path}); code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
}

func TestRunApp_WhenArgsInvalid_ShouldReturn1(t *testing.T) {
	if code := runApp([]string{"keyrelay", "complete"}); code != 1 {
		t.Errorf("code = %d, want 1", code)
	}
}
