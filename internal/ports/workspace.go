package ports

import "github.com/gauntletci/gauntlet/internal/domain"

type WorkspaceInitializer interface {
	Init(spec domain.WorkspaceSpec, force bool) error
}
