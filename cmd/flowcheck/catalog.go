package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/flowcheck/internal/catalog"
	"github.com/rendis/flowcheck/pkg/schema"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the node type catalog",
	}
	cmd.AddCommand(newCatalogImportCmd(a), newCatalogListCmd(a))
	return cmd
}

func newCatalogImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file|-]",
		Short: "Import node descriptors into the libSQL catalog",
		Long: `Import upserts a JSON array of node descriptors into the catalog named
by --catalog. Without a file argument the builtin descriptors are imported,
which seeds a fresh database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if a.cfg.Catalog == "" {
				return &exitError{code: exitFailure, err: errors.New("catalog import needs --catalog or FLOWCHECK_CATALOG")}
			}

			data := catalog.BuiltinJSON()
			if len(args) == 1 {
				var err error
				if data, err = a.readInput(args[0]); err != nil {
					return &exitError{code: exitFailure, err: err}
				}
			}
			descs, err := catalog.DecodeDescriptors(data)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}

			n, total, err := a.importDescriptors(ctx, descs)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			a.logger.Info("catalog imported",
				slog.String("catalog", a.cfg.Catalog),
				slog.Int("imported", n),
				slog.Int("total", total),
			)
			return a.emit(ctx, map[string]any{"imported": n, "total": total})
		},
	}
}

func (a *app) importDescriptors(ctx context.Context, descs []*schema.Descriptor) (int, int, error) {
	store, err := catalog.OpenLibSQLStore(ctx, catalogDSN(a.cfg.Catalog))
	if err != nil {
		return 0, 0, err
	}
	defer store.Close()

	n, err := store.Import(ctx, descs)
	if err != nil {
		return 0, 0, err
	}
	total, err := store.Count(ctx)
	if err != nil {
		return 0, 0, err
	}
	return n, total, nil
}

func newCatalogListCmd(a *app) *cobra.Command {
	var pkg string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the node types the catalog knows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			types, err := a.listTypes(ctx, pkg)
			if err != nil {
				return &exitError{code: exitFailure, err: err}
			}
			if types == nil {
				types = []string{}
			}
			return a.emit(ctx, types)
		},
	}
	cmd.Flags().StringVar(&pkg, "package", "", "only list one package, e.g. "+catalog.PackageBase)
	return cmd
}

func (a *app) listTypes(ctx context.Context, pkg string) ([]string, error) {
	if a.cfg.Catalog != "" {
		store, err := catalog.OpenLibSQLStore(ctx, catalogDSN(a.cfg.Catalog))
		if err != nil {
			return nil, err
		}
		defer store.Close()
		if pkg != "" {
			return store.TypesByPackage(ctx, pkg)
		}
		return store.Types(ctx)
	}

	mem, err := catalog.Builtin()
	if err != nil {
		return nil, err
	}
	all, err := mem.Types(ctx)
	if err != nil {
		return nil, err
	}
	if pkg == "" {
		return all, nil
	}
	var out []string
	for _, t := range all {
		if strings.HasPrefix(t, pkg+".") {
			out = append(out, t)
		}
	}
	return out, nil
}
