// Package extract defines the datasets sqlsnap pulls from each source.
//
// Every dataset issues one fixed query. Which query runs may depend on the
// auxiliary tables present in the current schema, but a missing auxiliary
// table never fails a dataset on its own.
package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/config"
	"github.com/ajitpratap0/sqlsnap/pkg/errors"
	"github.com/ajitpratap0/sqlsnap/pkg/frame"
	"github.com/ajitpratap0/sqlsnap/pkg/source"
)

// Func extracts one dataset from an open source.
type Func func(ctx context.Context, src source.Source, log *zap.Logger) (*frame.Frame, error)

// Dataset is one named extraction.
type Dataset struct {
	// Name is the key reported in the run summary
	Name string
	// UploadName is the dataset name used for the snapshot object
	UploadName string
	// Tables lists the tables the query may read
	Tables  []string
	Extract Func
}

// ForSource returns the datasets of a source in run order.
func ForSource(kind config.SourceKind) []Dataset {
	switch kind {
	case config.MySQL:
		return []Dataset{
			{Name: "users", UploadName: "users", Tables: []string{"users"}, Extract: Users},
			{Name: "compras", UploadName: "compras", Tables: []string{"compras", "compra_productos", "compra_cantidades"}, Extract: Compras},
		}
	case config.PostgreSQL:
		return []Dataset{
			{Name: "productos", UploadName: "productos", Tables: []string{"productos"}, Extract: Productos},
			{Name: "ofertas", UploadName: "ofertas_completo", Tables: []string{"ofertas", "ofertas_detalle"}, Extract: Ofertas},
		}
	default:
		return nil
	}
}

// Select keeps the datasets named in names, preserving run order. An empty
// names list keeps everything.
func Select(datasets []Dataset, names []string) ([]Dataset, error) {
	if len(names) == 0 {
		return datasets, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	out := make([]Dataset, 0, len(names))
	for _, d := range datasets {
		if want[d.Name] {
			out = append(out, d)
			delete(want, d.Name)
		}
	}
	for n := range want {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown dataset %q", n)
	}
	return out, nil
}

// MissingTable is the error reported when a required table does not exist.
func MissingTable(kind config.SourceKind, table string) error {
	return errors.New(errors.ErrorTypeNotFound, fmt.Sprintf("La tabla '%s' no existe en %s", table, kind.DisplayName()))
}

// requireTable fails with MissingTable unless table exists.
func requireTable(ctx context.Context, src source.Source, table string) error {
	ok, err := src.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if !ok {
		return MissingTable(src.Kind(), table)
	}
	return nil
}
