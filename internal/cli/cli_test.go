package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gauntletci/gauntlet/internal/domain"
)

// --- looksLikePath ---

func TestLooksLikePath(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"demo", false},
		{"demo.yaml", false},
		{"./demo.yaml", true},
		{"pipelines/demo.yaml", true},
		{"/abs/path/demo.yaml", true},
	}
	for _, c := range cases {
		if got := looksLikePath(c.input); got != c.want {
			t.Errorf("looksLikePath(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

// --- hasYAMLExt ---

func TestHasYAMLExt(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"demo.yaml", true},
		{"demo.yml", true},
		{"DEMO.YAML", true},
		{"demo.json", false},
		{"demo", false},
		{"", false},
	}
	for _, c := range cases {
		if got := hasYAMLExt(c.input); got != c.want {
			t.Errorf("hasYAMLExt(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

// --- fileExists ---

func TestFileExists_True(t *testing.T) {
	tmp := t.TempDir()
	p := filepath.Join(tmp, "exists.txt")
	if err := os.WriteFile(p, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !fileExists(p) {
		t.Errorf("expected fileExists=true for %s", p)
	}
}

func TestFileExists_False(t *testing.T) {
	tmp := t.TempDir()
	if fileExists(filepath.Join(tmp, "not_there.txt")) {
		t.Error("expected fileExists=false for non-existent file")
	}
}

// --- countCheckPassFail ---

func TestCountCheckPassFail_Mixed(t *testing.T) {
	in := []domain.CheckResult{
		{Passed: true},
		{Passed: false},
		{Passed: true},
	}
	pass, fail := countCheckPassFail(in)
	if pass != 2 || fail != 1 {
		t.Errorf("expected pass=2 fail=1, got pass=%d fail=%d", pass, fail)
	}
}

func TestCountCheckPassFail_Empty(t *testing.T) {
	pass, fail := countCheckPassFail(nil)
	if pass != 0 || fail != 0 {
		t.Errorf("expected 0/0, got %d/%d", pass, fail)
	}
}

// --- printRun ---

func TestPrintRun_JSON_ValidOutput(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	run := domain.RunArtifact{
		PipelineName:    "ci",
		EnvironmentName: "local",
		StartedAt:       now,
		FinishedAt:      now.Add(100 * time.Millisecond),
	}
	var buf bytes.Buffer
	if err := printRun(&buf, run, "abc123", "json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if payload["run_id"] != "abc123" {
		t.Errorf("expected run_id=abc123, got %v", payload["run_id"])
	}
	if payload["run"] == nil {
		t.Error("expected 'run' key in JSON output")
	}
}

func TestPrintRun_Pretty_ContainsPipelineName(t *testing.T) {
	run := domain.RunArtifact{
		PipelineName:    "ci",
		EnvironmentName: "local",
		StartedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		FinishedAt:      time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}
	var buf bytes.Buffer
	if err := printRun(&buf, run, "run-42", "pretty"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "ci") {
		t.Errorf("expected pipeline name in pretty output, got:\n%s", out)
	}
	if !strings.Contains(out, "run-42") {
		t.Errorf("expected run ID in pretty output, got:\n%s", out)
	}
}

func TestPrintRun_EmptyFormat_IsPretty(t *testing.T) {
	var buf bytes.Buffer
	if err := printRun(&buf, domain.RunArtifact{}, "", ""); err != nil {
		t.Fatalf("empty format should behave like pretty, got error: %v", err)
	}
}

func TestPrintRun_UnknownFormat_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	err := printRun(&buf, domain.RunArtifact{}, "", "xml")
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
	if !strings.Contains(err.Error(), "xml") {
		t.Errorf("expected error to mention format, got: %v", err)
	}
}

// --- printPrettyRun with phases, checks, and uploads ---

func TestPrintPrettyRun_WithJobs(t *testing.T) {
	run := domain.RunArtifact{
		PipelineName:    "ci",
		EnvironmentName: "local",
		Jobs: []domain.JobResult{
			{
				Name:    "3.6 #1",
				Runtime: "3.6",
				Status:  domain.JobFailed,
				Phases: []domain.PhaseResult{
					{
						Phase: domain.PhaseScript,
						Commands: []domain.CommandResult{
							{Command: "pytest", ExitCode: 1, Error: &domain.RunError{Kind: domain.RunErrorExit, Message: "exit status 1"}},
						},
					},
				},
				Checks: []domain.CheckResult{
					{Name: "jsonpath.eq", Passed: true, Message: "$.failures == 0"},
					{Name: "jsonpath.exists", Passed: false, Message: "not found"},
				},
				Extracted: domain.Vars{"coverage": "81.5"},
				Uploads: []domain.UploadResult{
					{Path: "results/plot.png", URL: "https://img.example/a", Success: true},
				},
			},
		},
	}
	var buf bytes.Buffer
	printPrettyRun(&buf, run, "")
	out := buf.String()

	if !strings.Contains(out, "3.6 #1") {
		t.Errorf("expected job name in output, got:\n%s", out)
	}
	if !strings.Contains(out, "FAIL") {
		t.Errorf("expected FAIL status for failed job, got:\n%s", out)
	}
	if !strings.Contains(out, "exit status 1") {
		t.Errorf("expected failed command error in output, got:\n%s", out)
	}
	if !strings.Contains(out, "1 pass / 1 fail") {
		t.Errorf("expected check pass/fail count, got:\n%s", out)
	}
	if !strings.Contains(out, "coverage") {
		t.Errorf("expected extracted var in output, got:\n%s", out)
	}
	if !strings.Contains(out, "https://img.example/a") {
		t.Errorf("expected upload URL in output, got:\n%s", out)
	}
}

func TestPrintPrettyRun_CanceledJob(t *testing.T) {
	run := domain.RunArtifact{
		Jobs: []domain.JobResult{
			{Name: "3.5 #1", Status: domain.JobCanceled},
		},
	}
	var buf bytes.Buffer
	printPrettyRun(&buf, run, "")
	if !strings.Contains(buf.String(), "CANCELED") {
		t.Errorf("expected CANCELED status in output, got:\n%s", buf.String())
	}
}

// --- command structure ---

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, expected := range []string{"run", "validate", "version", "init", "pipelines", "envs"} {
		if !names[expected] {
			t.Errorf("expected subcommand %q to be registered", expected)
		}
	}
}

func TestRunCmd_Flags(t *testing.T) {
	cmd := runCmd()
	if cmd.Use != "run" {
		t.Errorf("expected Use=run, got %q", cmd.Use)
	}
	for _, flag := range []string{"pipeline", "env", "workspace", "no-save", "format", "max-parallel"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected --%s flag on run command", flag)
		}
	}
}

func TestValidateCmd_Flags(t *testing.T) {
	cmd := validateCmd()
	if cmd.Use != "validate" {
		t.Errorf("expected Use=validate, got %q", cmd.Use)
	}
	for _, flag := range []string{"pipeline", "env", "workspace"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected --%s flag on validate command", flag)
		}
	}
}

func TestPipelinesCmd_HasListSubcommand(t *testing.T) {
	cmd := pipelinesCmd()
	found := false
	for _, sub := range cmd.Commands() {
		if sub.Use == "list" {
			found = true
		}
	}
	if !found {
		t.Error("expected 'list' subcommand under pipelines")
	}
}

func TestEnvsCmd_HasListSubcommand(t *testing.T) {
	cmd := envsCmd()
	found := false
	for _, sub := range cmd.Commands() {
		if sub.Use == "list" {
			found = true
		}
	}
	if !found {
		t.Error("expected 'list' subcommand under envs")
	}
}

func TestInitCmd_Flags(t *testing.T) {
	cmd := initCmd()
	if cmd.Flags().Lookup("force") == nil {
		t.Error("expected --force flag on init command")
	}
}

// --- resolveWorkspaceRoot ---

func TestResolveWorkspaceRoot_ExplicitPath(t *testing.T) {
	tmp := t.TempDir()
	got, err := resolveWorkspaceRoot(tmp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != tmp {
		t.Errorf("expected %q, got %q", tmp, got)
	}
}

func TestResolveWorkspaceRoot_RelativePath(t *testing.T) {
	got, err := resolveWorkspaceRoot(".")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("expected absolute path, got %q", got)
	}
}
