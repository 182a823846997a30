package extract

import (
	"context"

	"go.uber.org/zap"

	"github.com/ajitpratap0/sqlsnap/pkg/frame"
	"github.com/ajitpratap0/sqlsnap/pkg/source"
)

const (
	usersQuery   = `SELECT * FROM users`
	comprasQuery = `SELECT * FROM compras`

	// comprasGroupedQuery collapses each side table into its own sorted,
	// deduplicated list. The two lists are not paired by line.
	comprasGroupedQuery = `SELECT
    c.id,
    c.fecha_compra,
    c.usuario_id,
    GROUP_CONCAT(DISTINCT cp.producto_id ORDER BY cp.producto_id) as productos,
    GROUP_CONCAT(DISTINCT cc.cantidad ORDER BY cc.cantidad) as cantidades
FROM compras c
LEFT JOIN compra_productos cp ON c.id = cp.compra_id
LEFT JOIN compra_cantidades cc ON c.id = cc.compra_id
GROUP BY c.id, c.fecha_compra, c.usuario_id
ORDER BY c.id`
)

// CredentialColumn is removed from every users snapshot.
const CredentialColumn = "password"

// Users extracts the users table without its credential column.
func Users(ctx context.Context, src source.Source, log *zap.Logger) (*frame.Frame, error) {
	if err := requireTable(ctx, src, "users"); err != nil {
		return nil, err
	}

	f, err := src.Query(ctx, usersQuery)
	if err != nil {
		return nil, err
	}

	if f.DropColumn(CredentialColumn) {
		log.Debug("dropped credential column", zap.String("column", CredentialColumn))
	}
	return f, nil
}

// Compras extracts purchase headers, grouped with their products and
// quantities when both side tables exist.
func Compras(ctx context.Context, src source.Source, log *zap.Logger) (*frame.Frame, error) {
	if err := requireTable(ctx, src, "compras"); err != nil {
		return nil, err
	}

	hasProductos, err := src.TableExists(ctx, "compra_productos")
	if err != nil {
		return nil, err
	}
	hasCantidades, err := src.TableExists(ctx, "compra_cantidades")
	if err != nil {
		return nil, err
	}

	if !hasProductos || !hasCantidades {
		log.Info("side tables missing, extracting purchase headers only",
			zap.Bool("compra_productos", hasProductos),
			zap.Bool("compra_cantidades", hasCantidades))
		return src.Query(ctx, comprasQuery)
	}

	log.Warn("productos and cantidades are sorted independently and may not pair by line",
		zap.String("check", "line_pairing_unverified"))
	return src.Query(ctx, comprasGroupedQuery)
}
