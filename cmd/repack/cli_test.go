package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"repack/internal/config"
	"repack/internal/convert"
	"repack/internal/formats"
	"repack/internal/history"
	"repack/internal/logging"
	"repack/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	uploadDir  string
	outputDir  string
	stagingDir string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	home := filepath.Join(base, "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv("REPACK_API_TOKEN", "")
	t.Setenv("REPACK_SEVENZIP", filepath.Join(base, "missing", "7zz"))

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		uploadDir:  filepath.Join(base, "uploads"),
		outputDir:  filepath.Join(base, "outputs"),
		stagingDir: filepath.Join(base, "staging"),
	}
	content := fmt.Sprintf(`[paths]
staging_dir = %q
upload_dir = %q
output_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"

[conversion]
workers = 2

[limits]
min_free_bytes = 0

[sweep]
enabled = false

[history]
enabled = true
path = %q
retention_days = 30
`, env.stagingDir, env.uploadDir, env.outputDir, filepath.Join(base, "logs"), filepath.Join(base, "history.db"))
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	registry := formats.NewRegistry(formats.Capabilities{})
	desc, err := registry.Resolve("zip")
	if err != nil {
		t.Fatalf("resolve zip: %v", err)
	}
	codec, err := registry.Codec(desc)
	if err != nil {
		t.Fatalf("zip codec: %v", err)
	}
	testsupport.BuildArchive(t, codec, path, files)
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Workers: 2")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}
	if _, _, err := runCLI(t, []string{"config", "validate"}, target); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestConvertCommandWritesOutputAndHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	files := map[string]string{"readme.txt": "hello", "docs/guide.md": "# guide"}
	source := filepath.Join(env.baseDir, "bundle.zip")
	writeZip(t, source, files)

	out, _, err := runCLI(t, []string{"convert", source, "--to", "tar.gz"}, env.configPath)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	output := filepath.Join(env.outputDir, "bundle.tar.gz")
	requireContains(t, out, "Wrote "+output)
	requireContains(t, out, "BLAKE3:")

	registry := formats.NewRegistry(formats.Capabilities{})
	desc, _ := registry.Resolve("tar.gz")
	codec, _ := registry.Codec(desc)
	testsupport.AssertFiles(t, files, testsupport.ExtractArchive(t, codec, output))
	testsupport.AssertEmptyDir(t, env.stagingDir)

	out, _, err = runCLI(t, []string{"--json", "history", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	var records []history.Record
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(records) != 1 || !records[0].Success || records[0].SourceFormat != "zip" || records[0].TargetFormat != "tar.gz" {
		t.Fatalf("unexpected history %#v", records)
	}
	if records[0].OutputDigest == "" {
		t.Fatal("expected output digest in history")
	}

	out, _, err = runCLI(t, []string{"history", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("history list table: %v", err)
	}
	requireContains(t, out, "zip -> tar.gz")

	out, _, err = runCLI(t, []string{"history", "prune", "--older-than", "0s"}, env.configPath)
	if err != nil {
		t.Fatalf("history prune: %v", err)
	}
	requireContains(t, out, "Removed 1 history records")
}

func TestConvertCommandReportsFailures(t *testing.T) {
	env := setupCLITestEnv(t)

	rar := filepath.Join(env.baseDir, "clip.rar")
	if err := os.WriteFile(rar, []byte("Rar!"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, _, err := runCLI(t, []string{"--json", "convert", rar, "--to", "zip"}, env.configPath)
	if !errors.Is(err, errReported) {
		t.Fatalf("expected errReported, got %v", err)
	}
	var result convert.Result
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode result: %v\n%s", err, out)
	}
	if result.Success || !strings.HasPrefix(result.Error, "unsupported format: resolve: rar:") {
		t.Fatalf("unexpected result %#v", result)
	}

	source := filepath.Join(env.baseDir, "bundle.zip")
	writeZip(t, source, map[string]string{"a.txt": "a"})
	_, _, err = runCLI(t, []string{"convert", source, "--to", "7z"}, env.configPath)
	if err == nil || !strings.HasPrefix(err.Error(), "dependency unavailable: resolve: 7z:") {
		t.Fatalf("expected dependency error, got %v", err)
	}

	if _, _, err := runCLI(t, []string{"convert", source}, env.configPath); err == nil {
		t.Fatal("expected error without --to")
	}
	if _, _, err := runCLI(t, []string{"convert", source, "--to", "tar", "--collision", "merge"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown collision policy")
	}
}

func TestConvertCommandCollisionRename(t *testing.T) {
	env := setupCLITestEnv(t)
	source := filepath.Join(env.baseDir, "bundle.zip")
	writeZip(t, source, map[string]string{"a.txt": "a"})

	for i := 0; i < 2; i++ {
		if _, _, err := runCLI(t, []string{"convert", source, "--to", "tar", "--collision", "rename"}, env.configPath); err != nil {
			t.Fatalf("convert %d: %v", i, err)
		}
	}
	for _, name := range []string{"bundle.tar", "bundle (1).tar"} {
		if _, err := os.Stat(filepath.Join(env.outputDir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}
}

func TestFormatsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"--json", "formats"}, env.configPath)
	if err != nil {
		t.Fatalf("formats: %v", err)
	}
	var resp struct {
		Formats []struct {
			Token     string `json:"token"`
			Available bool   `json:"available"`
			CanPack   bool   `json:"can_pack"`
		} `json:"formats"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode formats: %v", err)
	}
	available := map[string]bool{}
	for _, f := range resp.Formats {
		available[f.Token] = f.Available
	}
	if !available["zip"] || !available["tar.zst"] || available["7z"] {
		t.Fatalf("unexpected availability %v", available)
	}

	out, _, err = runCLI(t, []string{"formats"}, env.configPath)
	if err != nil {
		t.Fatalf("formats table: %v", err)
	}
	requireContains(t, out, "tar.lz4")
	requireContains(t, out, "Recognized suffixes: ")
	requireContains(t, out, " .tgz")
}

func TestStagingListAndClean(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"staging", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("staging list: %v", err)
	}
	requireContains(t, out, "No staging areas found")

	stale := filepath.Join(env.stagingDir, "bundle-0f0e0d0c")
	testsupport.WriteTree(t, stale, map[string]string{"content/a.txt": "leftover"})
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	testsupport.WriteTree(t, env.uploadDir, map[string]string{"old.zip": "x"})
	if err := os.Chtimes(filepath.Join(env.uploadDir, "old.zip"), old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	out, _, err = runCLI(t, []string{"--json", "staging", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("staging list json: %v", err)
	}
	requireContains(t, out, "bundle-0f0e0d0c")

	out, _, err = runCLI(t, []string{"staging", "clean", "--uploads"}, env.configPath)
	if err != nil {
		t.Fatalf("staging clean: %v", err)
	}
	requireContains(t, out, "Removed 1 staging entries")
	requireContains(t, out, "Removed 1 upload entries")
	testsupport.AssertEmptyDir(t, env.stagingDir)
	testsupport.AssertEmptyDir(t, env.uploadDir)
}

func TestStatusCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"--json", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var report statusReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if report.History == nil || report.History.Total != 0 {
		t.Fatalf("unexpected history summary %#v", report.History)
	}
	if len(report.Dependencies) != 1 || report.Dependencies[0].Available {
		t.Fatalf("expected missing 7-Zip, got %#v", report.Dependencies)
	}
	for _, check := range report.Checks {
		if !check.Passed {
			t.Fatalf("check %s failed: %s", check.Name, check.Detail)
		}
	}
}

func TestServeAnswersHealthAndStops(t *testing.T) {
	env := setupCLITestEnv(t)
	cfg, _, _, err := config.Load(env.configPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, logging.NewNop(), func(addr string) { addrCh <- addr })
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start")
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}
