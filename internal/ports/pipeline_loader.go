package ports

import "github.com/gauntletci/gauntlet/internal/domain"

// PipelineLoader loads pipelines from a source (e.g., filesystem).
type PipelineLoader interface {
	LoadPipeline(path string) (domain.Pipeline, error)
	ListPipelines(root string) ([]domain.PipelineRef, error)
}
