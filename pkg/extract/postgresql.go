package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/frame"
	"github.com/ajitpratap0/sqlsnap/pkg/source"
)

const (
	productosQuery = `SELECT * FROM productos`

	ofertasQuery = `SELECT
    o.id as oferta_id,
    o.fecha_vencimiento,
    o.fecha_creacion,
    o.fecha_actualizacion,
    od.id as detalle_id,
    od.producto_id,
    od.descuento
FROM ofertas o
LEFT JOIN ofertas_detalle od ON o.id = od.oferta_id
ORDER BY o.id, od.id`
)

// Productos extracts the products table.
func Productos(ctx context.Context, src source.Source, _ *zap.Logger) (*frame.Frame, error) {
	if err := requireTable(ctx, src, "productos"); err != nil {
		return nil, err
	}
	return src.Query(ctx, productosQuery)
}

// Ofertas extracts one row per offer line item, with a single null-detail
// row for offers that have none.
func Ofertas(ctx context.Context, src source.Source, _ *zap.Logger) (*frame.Frame, error) {
	for _, table := range []string{"ofertas", "ofertas_detalle"} {
		if err := requireTable(ctx, src, table); err != nil {
			return nil, err
		}
	}
	return src.Query(ctx, ofertasQuery)
}
