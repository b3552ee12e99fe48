// Package core assembles a catalog from configuration: the document store
// backend, the id allocators, the study directory, telemetry and one adaptor
// per entity kind.
package core

import (
	"context"
	"fmt"

	"github.com/bart-jansen/opencga/internal/blob"
	"github.com/bart-jansen/opencga/internal/config"
	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/infra/docstore/memory"
	"github.com/bart-jansen/opencga/internal/infra/docstore/mongo"
	"github.com/bart-jansen/opencga/internal/infra/docstore/objectstore"
	"github.com/bart-jansen/opencga/internal/infra/docstore/postgres"
	"github.com/bart-jansen/opencga/internal/infra/docstore/sqlite"
)

// OpenDocumentStore selects a backend from cfg. Defaults to sqlite when the
// driver is unset.
//
//	memory    in-process only (tests / ephemeral)
//	sqlite    embedded file at sqlite_path
//	postgres  snapshot tables at postgres_dsn
//	blob      JSON objects in a filesystem, S3 or memory blob store
//	mongo     native collections in a MongoDB database
func OpenDocumentStore(ctx context.Context, cfg config.StorageConfig) (docstore.Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = config.StorageSQLite
	}
	switch driver {
	case config.StorageMemory:
		return memory.NewStore(), nil
	case config.StorageSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.StoragePostgres:
		return postgres.Open(ctx, cfg.PostgresDSN)
	case config.StorageBlob:
		blobs, err := blob.Open(ctx, blob.Config{
			Driver:      cfg.Blob.Driver,
			FSRoot:      cfg.Blob.FSRoot,
			S3Bucket:    cfg.Blob.S3Bucket,
			S3Region:    cfg.Blob.S3Region,
			S3Endpoint:  cfg.Blob.S3Endpoint,
			S3PathStyle: cfg.Blob.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return objectstore.Open(ctx, blobs, cfg.Blob.Prefix)
	case config.StorageMongo:
		return mongo.Open(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
