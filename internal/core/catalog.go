package core

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bart-jansen/opencga/internal/catalog"
	"github.com/bart-jansen/opencga/internal/config"
	"github.com/bart-jansen/opencga/internal/directory"
	"github.com/bart-jansen/opencga/internal/docstore"
	"github.com/bart-jansen/opencga/internal/telemetry"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// Catalog holds one adaptor per entity kind over a shared store.
type Catalog struct {
	Cohorts          *catalog.Adaptor[domain.Cohort]
	Individuals      *catalog.Adaptor[domain.Individual]
	ClinicalAnalyses *catalog.Adaptor[domain.ClinicalAnalysis]

	store    docstore.Store
	dir      *directory.Directory
	registry *prometheus.Registry
	tracer   *telemetry.JSONTracer
	textfile string
	closers  []func() error
}

// Open builds a catalog from cfg. logger may be nil.
func Open(ctx context.Context, cfg *config.Config, logger telemetry.Logger) (*Catalog, error) {
	dir, err := directory.Load(cfg.Directory.Path)
	if err != nil {
		return nil, err
	}
	store, err := OpenDocumentStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	c, err := assemble(ctx, cfg, store, dir, logger)
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return c, nil
}

// New builds a catalog over an open store, for callers that manage the store
// themselves. Close does not close store.
func New(ctx context.Context, cfg *config.Config, store docstore.Store, dir *directory.Directory, logger telemetry.Logger) (*Catalog, error) {
	c, err := assemble(ctx, cfg, store, dir, logger)
	if err != nil {
		return nil, err
	}
	c.store = nil
	return c, nil
}

func assemble(ctx context.Context, cfg *config.Config, store docstore.Store, dir *directory.Directory, logger telemetry.Logger) (_ *Catalog, err error) {
	c := &Catalog{store: store, dir: dir, textfile: cfg.Metrics.Textfile}
	defer func() {
		if err != nil {
			_ = c.closeAll()
		}
	}()

	schemas, err := directory.NewCachedVariableSets(dir, cfg.Directory.CacheSize)
	if err != nil {
		return nil, err
	}
	kinds := []domain.EntityKind{domain.KindCohort, domain.KindIndividual, domain.KindClinicalAnalysis}
	allocs, byKind, err := openAllocators(ctx, cfg.IDs, store, kinds)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, allocs.Close)

	opts := []catalog.Option{
		catalog.WithLogger(logger),
		catalog.WithTimeout(cfg.Timeout),
		catalog.WithVariableSets(schemas),
		catalog.WithExistence(references{dir: dir, store: catalog.StoreExistence{Store: store}}),
	}
	if cfg.Metrics.Textfile != "" {
		c.registry = prometheus.NewRegistry()
		rec, err := telemetry.NewPrometheusRecorder(c.registry)
		if err != nil {
			return nil, err
		}
		opts = append(opts, catalog.WithMetrics(rec))
	}
	if cfg.Metrics.TracePath != "" {
		f, err := os.OpenFile(cfg.Metrics.TracePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		c.closers = append(c.closers, f.Close)
		c.tracer = telemetry.NewJSONTracer(f)
		opts = append(opts, catalog.WithTracer(c.tracer))
	}
	with := func(kind domain.EntityKind) []catalog.Option {
		return append(append([]catalog.Option{}, opts...), catalog.WithAllocator(byKind[kind]))
	}

	if c.Cohorts, err = catalog.New(ctx, store, catalog.Cohorts(), dir, with(domain.KindCohort)...); err != nil {
		return nil, err
	}
	if c.Individuals, err = catalog.New(ctx, store, catalog.Individuals(), dir, with(domain.KindIndividual)...); err != nil {
		return nil, err
	}
	if c.ClinicalAnalyses, err = catalog.New(ctx, store, catalog.ClinicalAnalyses(), dir, with(domain.KindClinicalAnalysis)...); err != nil {
		return nil, err
	}
	return c, nil
}

// Directory returns the study directory.
func (c *Catalog) Directory() *directory.Directory { return c.dir }

// Registry returns the prometheus registry, or nil when metrics are off.
func (c *Catalog) Registry() *prometheus.Registry { return c.registry }

// Close writes the metrics textfile and releases every resource.
func (c *Catalog) Close(ctx context.Context) error {
	var errs []error
	if c.registry != nil && c.textfile != "" {
		if err := prometheus.WriteToTextfile(c.textfile, c.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if c.store != nil {
		if err := c.store.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Catalog) closeAll() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// references checks kinds listed in the directory file against it and every
// other kind against the store.
type references struct {
	dir   *directory.Directory
	store catalog.StoreExistence
}

func (r references) Exists(ctx context.Context, studyID int64, kind domain.EntityKind, ids []int64) error {
	if r.dir.Manages(kind) {
		return r.dir.Exists(ctx, studyID, kind, ids)
	}
	return r.store.Exists(ctx, studyID, kind, ids)
}
