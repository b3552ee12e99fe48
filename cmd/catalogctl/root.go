package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bart-jansen/opencga/internal/catalog"
	"github.com/bart-jansen/opencga/internal/config"
	"github.com/bart-jansen/opencga/internal/core"
	"github.com/bart-jansen/opencga/internal/logging"
	"github.com/bart-jansen/opencga/internal/query"
	"github.com/bart-jansen/opencga/pkg/domain"
)

type app struct {
	configPath string
	study      int64
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Manage catalog cohorts, individuals and clinical analyses",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to catalog.yaml (defaults to ./configs or the working directory)")
	root.PersistentFlags().Int64Var(&a.study, "study", 0, "Study id used by create and to scope queries")
	root.AddCommand(
		entityCmd(a, "cohort", "Cohorts of samples",
			func(c *core.Catalog) *catalog.Adaptor[domain.Cohort] { return c.Cohorts }),
		entityCmd(a, "individual", "Individuals and their pedigree",
			func(c *core.Catalog) *catalog.Adaptor[domain.Individual] { return c.Individuals }),
		entityCmd(a, "clinical-analysis", "Clinical analyses of a proband",
			func(c *core.Catalog) *catalog.Adaptor[domain.ClinicalAnalysis] { return c.ClinicalAnalyses }),
	)
	return root
}

// withCatalog opens the configured catalog for the duration of fn.
func (a *app) withCatalog(ctx context.Context, fn func(*core.Catalog) error) (err error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	c, err := core.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := c.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Error("close catalog", slog.Any("error", cerr))
			if err == nil {
				err = cerr
			}
		}
	}()
	return fn(c)
}

// scoped adds the --study flag to q unless the caller already filtered on it.
func (a *app) scoped(q query.Query) query.Query {
	if a.study > 0 && !q.Has(query.KeyStudyID) {
		return q.With(query.KeyStudyID, strconv.FormatInt(a.study, 10))
	}
	return q
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
