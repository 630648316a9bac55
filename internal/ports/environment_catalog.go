package ports

import "github.com/gauntletci/gauntlet/internal/domain"

type EnvironmentCatalog interface {
	ListEnvironments(root string) ([]domain.EnvironmentRef, error)
}
