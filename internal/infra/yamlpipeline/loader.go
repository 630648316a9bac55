package yamlpipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gauntletci/gauntlet/internal/domain"
	"github.com/gauntletci/gauntlet/internal/ports"
	"gopkg.in/yaml.v3"
)

type Loader struct {
	pipelinesDir string
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{pipelinesDir: "pipelines"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type Option func(*Loader)

func WithPipelinesDir(dir string) Option {
	return func(l *Loader) { l.pipelinesDir = dir }
}

var _ ports.PipelineLoader = (*Loader)(nil)

func (l *Loader) LoadPipeline(path string) (domain.Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.Pipeline{}, &domain.OpError{
			Op:   "yamlpipeline.load",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	var yp yamlPipeline
	if err := yaml.Unmarshal(b, &yp); err != nil {
		return domain.Pipeline{}, &domain.OpError{
			Op:   "yamlpipeline.load",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}

	p, err := mapAndValidate(path, yp)
	if err != nil {
		return domain.Pipeline{}, err
	}

	return p, nil
}

func (l *Loader) ListPipelines(root string) ([]domain.PipelineRef, error) {
	dir := filepath.Join(root, l.pipelinesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &domain.OpError{
			Op:   "yamlpipeline.list",
			Kind: domain.KindNotFound,
			Path: dir,
			Err:  err,
		}
	}

	var refs []domain.PipelineRef
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		p := filepath.Join(dir, name)
		n, _ := readPipelineName(p)
		if strings.TrimSpace(n) == "" {
			n = strings.TrimSuffix(name, filepath.Ext(name))
		}

		refs = append(refs, domain.PipelineRef{Name: n, Path: p})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func readPipelineName(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var v struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(b, &v); err != nil {
		return "", err
	}
	return v.Name, nil
}

type yamlPipeline struct {
	Name     string   `yaml:"name"`
	Runtimes []string `yaml:"runtimes"`

	Env yamlEnvAxis `yaml:"env"`

	Install      []string   `yaml:"install"`
	Files        []yamlFile `yaml:"files"`
	BeforeScript []string   `yaml:"before_script"`
	Script       []string   `yaml:"script"`
	AfterSuccess []string   `yaml:"after_success"`
	AfterFailure []string   `yaml:"after_failure"`

	Reports   []yamlReport  `yaml:"reports"`
	Artifacts yamlArtifacts `yaml:"artifacts"`
}

type yamlEnvAxis struct {
	Global  map[string]string `yaml:"global"`
	Matrix  []string          `yaml:"matrix"`
	Exclude []yamlExclude     `yaml:"exclude"`
}

type yamlExclude struct {
	Runtime string `yaml:"runtime"`
	Env     string `yaml:"env"`
}

type yamlFile struct {
	Path    string `yaml:"path"`
	Content string `yaml:"content"`
	Mode    uint32 `yaml:"mode"`
}

type yamlReport struct {
	Path    string               `yaml:"path"`
	Checks  map[string]yamlCheck `yaml:"checks"`
	Extract map[string]string    `yaml:"extract"`
}

type yamlCheck struct {
	Exists   bool     `yaml:"exists"`
	Eq       *string  `yaml:"eq"`
	Contains *string  `yaml:"contains"`
	Matches  *string  `yaml:"matches"`
	Gt       *float64 `yaml:"gt"`
	Lt       *float64 `yaml:"lt"`
}

type yamlArtifacts struct {
	OnFailure yamlArtifactRule `yaml:"on_failure"`
}

type yamlArtifactRule struct {
	Dir  string `yaml:"dir"`
	Glob string `yaml:"glob"`
}

func mapAndValidate(path string, yp yamlPipeline) (domain.Pipeline, error) {
	if strings.TrimSpace(yp.Name) == "" {
		return domain.Pipeline{}, invalidField(path, "name", "pipeline name is required")
	}

	p := domain.Pipeline{
		Name:     yp.Name,
		Runtimes: trimAll(yp.Runtimes),
		Matrix: domain.MatrixSpec{
			Global: domain.Vars(yp.Env.Global),
		},
		Install:      toCommands(yp.Install),
		BeforeScript: toCommands(yp.BeforeScript),
		Script:       toCommands(yp.Script),
		AfterSuccess: toCommands(yp.AfterSuccess),
		AfterFailure: toCommands(yp.AfterFailure),
	}
	if p.Matrix.Global == nil {
		p.Matrix.Global = domain.Vars{}
	}

	for i, raw := range yp.Env.Matrix {
		entry, err := domain.ParseMatrixEntry(raw)
		if err != nil {
			return domain.Pipeline{}, invalidField(path, fmt.Sprintf("env.matrix[%d]", i), err.Error())
		}
		p.Matrix.Entries = append(p.Matrix.Entries, entry)
	}

	for i, ex := range yp.Env.Exclude {
		if strings.TrimSpace(ex.Env) == "" {
			return domain.Pipeline{}, invalidField(path, fmt.Sprintf("env.exclude[%d].env", i), "exclude env is required")
		}
		p.Matrix.Exclude = append(p.Matrix.Exclude, domain.ExcludeRule{
			Runtime: strings.TrimSpace(ex.Runtime),
			Env:     ex.Env,
		})
	}

	for i, f := range yp.Files {
		if strings.TrimSpace(f.Path) == "" {
			return domain.Pipeline{}, invalidField(path, fmt.Sprintf("files[%d].path", i), "file path is required")
		}
		p.Files = append(p.Files, domain.FileSpec{
			Path:    f.Path,
			Content: f.Content,
			Mode:    f.Mode,
		})
	}

	for i, r := range yp.Reports {
		if strings.TrimSpace(r.Path) == "" {
			return domain.Pipeline{}, invalidField(path, fmt.Sprintf("reports[%d].path", i), "report path is required")
		}

		rep := domain.ReportSpec{
			Path:    r.Path,
			Checks:  map[string]domain.CheckSpec{},
			Extract: map[string]string{},
		}
		for expr, c := range r.Checks {
			rep.Checks[expr] = domain.CheckSpec{
				Exists:   c.Exists,
				Eq:       c.Eq,
				Contains: c.Contains,
				Matches:  c.Matches,
				Gt:       c.Gt,
				Lt:       c.Lt,
			}
		}
		for name, expr := range r.Extract {
			rep.Extract[name] = expr
		}

		p.Reports = append(p.Reports, rep)
	}

	if yp.Artifacts.OnFailure.Dir != "" || yp.Artifacts.OnFailure.Glob != "" {
		if strings.TrimSpace(yp.Artifacts.OnFailure.Dir) == "" {
			return domain.Pipeline{}, invalidField(path, "artifacts.on_failure.dir", "artifact dir is required")
		}
		glob := strings.TrimSpace(yp.Artifacts.OnFailure.Glob)
		if glob == "" {
			glob = "*"
		}
		if _, err := filepath.Match(glob, "probe"); err != nil {
			return domain.Pipeline{}, invalidField(path, "artifacts.on_failure.glob", fmt.Sprintf("invalid glob %q", glob))
		}
		p.Artifacts = domain.ArtifactSpec{
			Dir:  yp.Artifacts.OnFailure.Dir,
			Glob: glob,
		}
	}

	return p, nil
}

func toCommands(in []string) []domain.Command {
	out := make([]domain.Command, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, domain.Command(s))
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func invalidField(path, field, msg string) error {
	return &domain.OpError{
		Op:   "yamlpipeline.validate",
		Kind: domain.KindInvalidConfig,
		Path: path,
		Err:  fmt.Errorf("field %s: %s", field, msg),
	}
}
