package interfaces

import (
	"context"
	"errors"

	marketdata "github.com/quanttradingfs/QuantFSA/internal/domain/entity/marketdata"
	portfolio "github.com/quanttradingfs/QuantFSA/internal/domain/entity/portfolio"
)

// ErrArtifactNotFound is returned by DatasetStore implementations when no
// artifact exists under the requested name.
var ErrArtifactNotFound = errors.New("artifact not found")

// DatasetStore persists yearly datasets keyed by their deterministic
// artifact name. Saving an existing name replaces the artifact; a read back
// must reproduce the same column set and row count.
type DatasetStore interface {
	SaveDataset(ctx context.Context, dataset *marketdata.YearlyDataset) error
	LoadDataset(ctx context.Context, name string) (*marketdata.YearlyDataset, error)
	ListArtifacts(ctx context.Context) ([]marketdata.ArtifactInfo, error)
	Close()
}

// OrderEventPublisher fans executed-order results out to interested
// consumers. Optional: dispatch proceeds without one.
type OrderEventPublisher interface {
	PublishOrder(ctx context.Context, result *portfolio.OrderResult) error
	Close()
}
