package vectorutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/pkg/vector"
	"github.com/papercomputeco/fnindex/pkg/vector/chroma"
	"github.com/papercomputeco/fnindex/pkg/vector/inmemory"
	"github.com/papercomputeco/fnindex/pkg/vector/qdrant"
	"github.com/papercomputeco/fnindex/pkg/vector/sqlitevec"
)

const (
	ProviderMemory = "memory"
	ProviderQdrant = "qdrant"
	ProviderChroma = "chroma"
	ProviderSQLite = "sqlite"
)

type NewVectorDriverOpts struct {
	ProviderType string

	// TargetURL is the server address for qdrant and chroma, or the database
	// path for sqlite.
	TargetURL string
	APIKey    string
	Logger    *zap.Logger
}

func NewVectorDriver(o *NewVectorDriverOpts) (vector.Driver, error) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch o.ProviderType {
	case ProviderMemory, "":
		return inmemory.NewDriver(logger), nil
	case ProviderQdrant:
		return qdrant.NewDriver(qdrant.Config{
			Target: o.TargetURL,
			APIKey: o.APIKey,
		}, logger)
	case ProviderChroma:
		return chroma.NewDriver(chroma.Config{
			URL: o.TargetURL,
		}, logger)
	case ProviderSQLite:
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath: o.TargetURL,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
