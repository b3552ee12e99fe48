// Package blob re-exports the blob abstractions and selects a backend. Other
// packages depend on blob.Store and never import the infra drivers directly.
package blob

import (
	"context"
	"fmt"

	"github.com/bart-jansen/opencga/internal/blob/core"
	"github.com/bart-jansen/opencga/internal/infra/blob/fs"
	"github.com/bart-jansen/opencga/internal/infra/blob/memory"
	"github.com/bart-jansen/opencga/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

// ErrNotFound is returned for missing keys.
var ErrNotFound = core.ErrNotFound

// Config selects and parameterizes a blob backend.
type Config struct {
	Driver      string
	FSRoot      string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// Open builds the configured blob store. The filesystem driver is the default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := Driver(cfg.Driver)
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memory.New() }

// NewS3Mock returns an S3 store backed by a fake transport, for tests of
// packages that cannot import the infra driver.
func NewS3Mock() Store { return s3.NewMockForTests() }
