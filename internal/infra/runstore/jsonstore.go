package runstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gauntletci/gauntlet/internal/domain"
	"github.com/gauntletci/gauntlet/internal/ports"
)

const defaultRunsDir = "runs"
const maskValue = "********"

type JSONStore struct {
	rootDir        string
	runsDirName    string
	maskingEnabled bool
	writeIndex     bool
	now            func() time.Time
}

type Option func(*JSONStore)

// WithIndex enables a simple JSONL index: runs/index.jsonl
func WithIndex(enabled bool) Option {
	return func(s *JSONStore) { s.writeIndex = enabled }
}

// WithNow is useful for tests.
func WithNow(now func() time.Time) Option {
	return func(s *JSONStore) { s.now = now }
}

func NewJSONStore(root string, cfg domain.Config, opts ...Option) *JSONStore {
	runsDir := cfg.Paths.RunsDir
	if strings.TrimSpace(runsDir) == "" {
		runsDir = defaultRunsDir
	}

	s := &JSONStore{
		rootDir:        root,
		runsDirName:    runsDir,
		maskingEnabled: cfg.Masking.Enabled,
		writeIndex:     false,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.ArtifactStore = (*JSONStore)(nil)

func (s *JSONStore) SaveRun(run domain.RunArtifact) (string, error) {
	dir := filepath.Join(s.rootDir, s.runsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &domain.OpError{
			Op:   "runstore.mkdir",
			Kind: domain.KindExecution,
			Path: dir,
			Err:  err,
		}
	}

	ts := run.StartedAt
	if ts.IsZero() {
		ts = s.now()
	}
	ts = ts.UTC()

	toSave := run
	if toSave.StartedAt.IsZero() {
		toSave.StartedAt = ts
	}
	namePart := run.PipelineName
	if strings.TrimSpace(namePart) == "" {
		namePart = strings.TrimSuffix(filepath.Base(run.PipelinePath), filepath.Ext(run.PipelinePath))
	}
	slug := slugify(namePart)
	if slug == "" {
		slug = "run"
	}

	filename := fmt.Sprintf("%s_%s.json", ts.Format("20060102T150405Z"), slug)
	id := strings.TrimSuffix(filename, ".json")
	path := filepath.Join(dir, filename)

	if s.maskingEnabled {
		toSave = maskArtifact(toSave)
	}

	b, err := json.MarshalIndent(toSave, "", "  ")
	if err != nil {
		return "", &domain.OpError{
			Op:   "runstore.marshal",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}

	// Atomic-ish write: tmp then rename.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return "", &domain.OpError{
			Op:   "runstore.write",
			Kind: domain.KindExecution,
			Path: tmp,
			Err:  err,
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", &domain.OpError{
			Op:   "runstore.rename",
			Kind: domain.KindExecution,
			Path: path,
			Err:  err,
		}
	}

	if s.writeIndex {
		_ = s.appendIndex(dir, id, filename, run)
	}

	return id, nil
}

func (s *JSONStore) appendIndex(dir, id, filename string, run domain.RunArtifact) error {
	type idx struct {
		ID        string    `json:"id"`
		File      string    `json:"file"`
		Pipeline  string    `json:"pipeline"`
		Env       string    `json:"env"`
		Jobs      int       `json:"jobs"`
		Failed    int       `json:"failed"`
		StartedAt time.Time `json:"started_at"`
	}
	line, err := json.Marshal(idx{
		ID:        id,
		File:      filename,
		Pipeline:  run.PipelineName,
		Env:       run.EnvironmentName,
		Jobs:      len(run.Jobs),
		Failed:    run.FailedJobs(),
		StartedAt: run.StartedAt,
	})
	if err != nil {
		return err
	}

	indexPath := filepath.Join(dir, "index.jsonl")
	f, err := os.OpenFile(indexPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, _ = f.Write(append(line, '\n'))
	return nil
}

// maskArtifact returns a masked copy (does NOT mutate the input).
func maskArtifact(run domain.RunArtifact) domain.RunArtifact {
	out := run
	out.Jobs = make([]domain.JobResult, 0, len(run.Jobs))

	for _, jr := range run.Jobs {
		c := jr

		c.Env = cloneVars(jr.Env)
		c.Extracted = cloneVars(jr.Extracted)
		c.Checks = cloneChecks(jr.Checks)
		c.Extracts = cloneExtracts(jr.Extracts)
		c.Uploads = cloneUploads(jr.Uploads)
		c.Phases = clonePhases(jr.Phases)

		for k := range c.Env {
			if isSensitiveKey(k) {
				c.Env[k] = maskValue
			}
		}
		for k := range c.Extracted {
			if isSensitiveKey(k) {
				c.Extracted[k] = maskValue
			}
		}

		out.Jobs = append(out.Jobs, c)
	}

	return out
}

func isSensitiveKey(k string) bool {
	kk := strings.ToLower(k)
	return strings.Contains(kk, "token") ||
		strings.Contains(kk, "secret") ||
		strings.Contains(kk, "password") ||
		strings.Contains(kk, "api_key") ||
		strings.Contains(kk, "apikey") ||
		// "key" as its own word: DEPLOY_KEY, ssh-key, key. A plain substring
		// match would also hit names like "monkey".
		kk == "key" ||
		strings.HasSuffix(kk, "_key") ||
		strings.HasSuffix(kk, "-key") ||
		strings.HasPrefix(kk, "key_") ||
		strings.HasPrefix(kk, "key-")
}

func cloneVars(in domain.Vars) domain.Vars {
	if in == nil {
		return domain.Vars{}
	}
	out := domain.Vars{}
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneChecks(in []domain.CheckResult) []domain.CheckResult {
	if in == nil {
		return []domain.CheckResult{}
	}
	out := make([]domain.CheckResult, len(in))
	copy(out, in)
	return out
}

func cloneExtracts(in []domain.ExtractResult) []domain.ExtractResult {
	if in == nil {
		return []domain.ExtractResult{}
	}
	out := make([]domain.ExtractResult, len(in))
	copy(out, in)
	return out
}

func cloneUploads(in []domain.UploadResult) []domain.UploadResult {
	if in == nil {
		return []domain.UploadResult{}
	}
	out := make([]domain.UploadResult, len(in))
	copy(out, in)
	return out
}

func clonePhases(in []domain.PhaseResult) []domain.PhaseResult {
	if in == nil {
		return []domain.PhaseResult{}
	}
	out := make([]domain.PhaseResult, len(in))
	for i, p := range in {
		cp := p
		cp.Commands = make([]domain.CommandResult, len(p.Commands))
		for j, c := range p.Commands {
			cc := c
			if c.Output != nil {
				cc.Output = make([]byte, len(c.Output))
				copy(cc.Output, c.Output)
			}
			cp.Commands[j] = cc
		}
		out[i] = cp
	}
	return out
}

// slugify produces a safe filename component.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))

	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
			lastDash = false
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	return strings.Trim(b.String(), "-")
}
