package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bart-jansen/opencga/internal/catalog"
	"github.com/bart-jansen/opencga/internal/core"
	"github.com/bart-jansen/opencga/internal/query"
)

// entityCmd builds the command tree for one entity kind. pick selects the
// kind's adaptor from an opened catalog.
func entityCmd[T any](a *app, use, short string, pick func(*core.Catalog) *catalog.Adaptor[T]) *cobra.Command {
	cmd := &cobra.Command{Use: use, Short: short}
	run := func(cmd *cobra.Command, fn func(*catalog.Adaptor[T]) (any, error)) error {
		return a.withCatalog(cmd.Context(), func(c *core.Catalog) error {
			out, err := fn(pick(c))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	}

	var file string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an entity from a JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.study <= 0 {
				return errors.New("--study is required")
			}
			var entity T
			if err := readJSON(cmd, file, &entity); err != nil {
				return err
			}
			return run(cmd, func(ad *catalog.Adaptor[T]) (any, error) {
				return ad.Create(cmd.Context(), a.study, entity)
			})
		},
	}
	create.Flags().StringVarP(&file, "file", "f", "-", "JSON input file, - for stdin")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, func(ad *catalog.Adaptor[T]) (any, error) {
				return ad.GetByID(cmd.Context(), id)
			})
		},
	}

	var opts catalog.Options
	search := &cobra.Command{
		Use:   "search [key=value...]",
		Short: "Search entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.query(args)
			if err != nil {
				return err
			}
			return run(cmd, func(ad *catalog.Adaptor[T]) (any, error) {
				found, err := ad.Search(cmd.Context(), q, opts)
				if found == nil {
					found = []T{}
				}
				return found, err
			})
		},
	}
	search.Flags().StringSliceVar(&opts.Include, "include", nil, "Fields to return")
	search.Flags().StringSliceVar(&opts.Exclude, "exclude", nil, "Fields to omit")
	search.Flags().StringSliceVar(&opts.Sort, "sort", nil, "Sort fields")
	search.Flags().BoolVar(&opts.Descending, "desc", false, "Sort descending")
	search.Flags().IntVar(&opts.Skip, "skip", 0, "Results to skip")
	search.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum results, 0 for all")

	count := &cobra.Command{
		Use:   "count [key=value...]",
		Short: "Count matching entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.query(args)
			if err != nil {
				return err
			}
			return run(cmd, func(ad *catalog.Adaptor[T]) (any, error) {
				n, err := ad.Count(cmd.Context(), q)
				return map[string]int64{"count": n}, err
			})
		},
	}

	distinct := &cobra.Command{
		Use:   "distinct <field> [key=value...]",
		Short: "List the distinct values of a field",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.query(args[1:])
			if err != nil {
				return err
			}
			return run(cmd, func(ad *catalog.Adaptor[T]) (any, error) {
				return ad.Distinct(cmd.Context(), q, args[0])
			})
		},
	}

	var patchFile string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Apply a JSON patch to one entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var patch map[string]any
			if err := readJSON(cmd, patchFile, &patch); err != nil {
				return err
			}
			return run(cmd, func(ad *catalog.Adaptor[T]) (any, error) {
				return ad.Update(cmd.Context(), id, patch)
			})
		},
	}
	update.Flags().StringVarP(&patchFile, "file", "f", "-", "JSON patch file, - for stdin")

	var batchPatch string
	updateQuery := &cobra.Command{
		Use:   "update-query key=value...",
		Short: "Apply a JSON patch to every matching entity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.query(args)
			if err != nil {
				return err
			}
			var patch map[string]any
			if err := readJSON(cmd, batchPatch, &patch); err != nil {
				return err
			}
			return run(cmd, func(ad *catalog.Adaptor[T]) (any, error) {
				n, err := ad.UpdateByQuery(cmd.Context(), q, patch)
				return map[string]int{"updated": n}, err
			})
		},
	}
	updateQuery.Flags().StringVarP(&batchPatch, "file", "f", "-", "JSON patch file, - for stdin")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Mark one entity deleted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, func(ad *catalog.Adaptor[T]) (any, error) {
				return ad.Delete(cmd.Context(), id)
			})
		},
	}

	deleteQuery := &cobra.Command{
		Use:   "delete-query key=value...",
		Short: "Mark every matching entity deleted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.query(args)
			if err != nil {
				return err
			}
			return run(cmd, func(ad *catalog.Adaptor[T]) (any, error) {
				n, err := ad.DeleteByQuery(cmd.Context(), q)
				return map[string]int{"deleted": n}, err
			})
		},
	}

	var groupFields []string
	groupBy := &cobra.Command{
		Use:   "group-by [key=value...]",
		Short: "Group matching entities by one or more fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.query(args)
			if err != nil {
				return err
			}
			return run(cmd, func(ad *catalog.Adaptor[T]) (any, error) {
				return ad.GroupBy(cmd.Context(), q, groupFields)
			})
		},
	}
	groupBy.Flags().StringSliceVar(&groupFields, "field", nil, "Field to group by (repeatable)")

	var (
		top       int
		ascending bool
	)
	rank := &cobra.Command{
		Use:   "rank <field> [key=value...]",
		Short: "Rank the values of a field by frequency",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.query(args[1:])
			if err != nil {
				return err
			}
			return run(cmd, func(ad *catalog.Adaptor[T]) (any, error) {
				return ad.Rank(cmd.Context(), q, args[0], top, ascending)
			})
		},
	}
	rank.Flags().IntVar(&top, "limit", 10, "Number of values to return")
	rank.Flags().BoolVar(&ascending, "asc", false, "Least frequent first")

	cmd.AddCommand(create, get, search, count, distinct, update, updateQuery, del, deleteQuery, groupBy, rank,
		aclCmd(a, pick))
	return cmd
}

// query parses key=value arguments and scopes them to --study.
func (a *app) query(args []string) (query.Query, error) {
	q, err := query.Parse(args)
	if err != nil {
		return nil, err
	}
	return a.scoped(q), nil
}

func readJSON(cmd *cobra.Command, path string, v any) error {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	dec := json.NewDecoder(r)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	return nil
}
