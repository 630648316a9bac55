package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gauntletci/gauntlet/internal/domain"
	"github.com/gauntletci/gauntlet/internal/infra/httpclient"
	"github.com/gauntletci/gauntlet/internal/infra/runstore"
	"github.com/gauntletci/gauntlet/internal/infra/shellrunner"
	"github.com/gauntletci/gauntlet/internal/infra/uploader"
	"github.com/gauntletci/gauntlet/internal/infra/workspacefinder"
	"github.com/gauntletci/gauntlet/internal/infra/yamlenv"
	"github.com/gauntletci/gauntlet/internal/infra/yamlpipeline"
	"github.com/gauntletci/gauntlet/internal/ports"
)

type workspaceCtx struct {
	root string
	cfg  domain.Config

	pipelines ports.PipelineLoader

	envs       ports.EnvironmentLoader
	envCatalog ports.EnvironmentCatalog

	runner   ports.CommandRunner
	store    ports.ArtifactStore
	uploader ports.Uploader
}

func loadWorkspace(workspaceFlag string) (*workspaceCtx, error) {
	root, err := resolveWorkspaceRoot(workspaceFlag)
	if err != nil {
		return nil, err
	}

	cfg, err := workspacefinder.LoadConfig(root)
	if err != nil {
		return nil, err
	}

	pipelineLoader := yamlpipeline.NewLoader(
		yamlpipeline.WithPipelinesDir(cfg.Paths.PipelinesDir),
	)

	envLoader := yamlenv.NewLoader(
		root,
		yamlenv.WithEnvDir(cfg.Paths.EnvironmentsDir),
	)

	runner := shellrunner.New()
	store := runstore.NewJSONStore(root, cfg, runstore.WithIndex(true))
	up := uploader.New(httpclient.New(httpclient.DefaultConfig()))

	return &workspaceCtx{
		root:       root,
		cfg:        cfg,
		pipelines:  pipelineLoader,
		envs:       envLoader,
		envCatalog: envLoader,
		runner:     runner,
		store:      store,
		uploader:   up,
	}, nil
}

func resolveWorkspaceRoot(workspaceFlag string) (string, error) {
	w := strings.TrimSpace(workspaceFlag)
	if w != "" {
		abs, err := filepath.Abs(w)
		if err != nil {
			return "", fmt.Errorf("invalid workspace path: %w", err)
		}
		return abs, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	locator := workspacefinder.NewFinder()
	root, err := locator.FindRoot(wd)
	if err != nil {
		return "", fmt.Errorf("workspace not found from %q (tip: run `gauntlet init`): %w", wd, err)
	}
	return root, nil
}

func resolvePipelinePath(ws *workspaceCtx, arg string) (string, error) {
	in := strings.TrimSpace(arg)
	if in == "" {
		return "", fmt.Errorf("pipeline is required (use --pipeline or -p)")
	}

	// If arg looks like a path (contains separators), resolve relative to workspace root.
	if looksLikePath(in) {
		p := in
		if !filepath.IsAbs(p) {
			p = filepath.Join(ws.root, p)
		}
		return filepath.Clean(p), nil
	}

	pipelinesDir := filepath.Join(ws.root, ws.cfg.Paths.PipelinesDir)

	// If user provided "demo.yaml", treat it as file under pipelines dir.
	if hasYAMLExt(in) {
		p := filepath.Join(pipelinesDir, in)
		if fileExists(p) {
			return p, nil
		}
	}

	// If user provided "demo", try demo.yaml / demo.yml in pipelines dir.
	p1 := filepath.Join(pipelinesDir, in+".yaml")
	if fileExists(p1) {
		return p1, nil
	}
	p2 := filepath.Join(pipelinesDir, in+".yml")
	if fileExists(p2) {
		return p2, nil
	}

	// As a last resort: match by the pipeline "name" field.
	refs, err := ws.pipelines.ListPipelines(ws.root)
	if err == nil {
		for _, r := range refs {
			if strings.EqualFold(r.Name, in) {
				return r.Path, nil
			}
		}
	}

	return "", fmt.Errorf("pipeline %q not found in %q", in, pipelinesDir)
}

func resolveEnvironmentArg(ws *workspaceCtx, arg string) (string, error) {
	in := strings.TrimSpace(arg)
	if in == "" {
		return ws.cfg.Defaults.Environment, nil
	}

	// If arg is a path, resolve relative to workspace root.
	if looksLikePath(in) {
		p := in
		if !filepath.IsAbs(p) {
			p = filepath.Join(ws.root, p)
		}
		return filepath.Clean(p), nil
	}

	// If user provided "local.yaml", treat it as file under env dir.
	if hasYAMLExt(in) {
		envDir := filepath.Join(ws.root, ws.cfg.Paths.EnvironmentsDir)
		p := filepath.Join(envDir, in)
		if fileExists(p) {
			return p, nil
		}
		// fall back to passing as-is (loader will treat it as path-like because of ".yaml")
		return p, nil
	}

	// Otherwise, treat it as an env name ("local") and let the loader resolve it.
	return in, nil
}

func looksLikePath(s string) bool {
	return strings.Contains(s, "/") || strings.Contains(s, string(filepath.Separator))
}

func hasYAMLExt(s string) bool {
	ext := strings.ToLower(filepath.Ext(s))
	return ext == ".yaml" || ext == ".yml"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
