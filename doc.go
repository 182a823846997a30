// Package sqlsnap snapshots a fixed set of relational datasets into object
// storage and reports the result as one JSON object per run.
//
// # Overview
//
// The sqlsnap binary has one subcommand per source:
//
//	sqlsnap mysql        # users, compras
//	sqlsnap postgresql   # productos, ofertas
//
// Each run connects to its database, extracts every dataset in order,
// writes one snapshot object per dataset and prints a summary on stdout:
//
//	{"users":{"url":"s3://bucket/mysql/users/...","registros":120},
//	 "compras":{"error":"La tabla 'compras' no existe en MySQL"}}
//
// A failed dataset never stops the run; the process exits 0 once all
// datasets were attempted. When the run cannot start at all, a single
// {"error":"Error general en script MySQL: ..."} object is printed and the
// process exits 1.
//
// # Packages
//
//   - pkg/config: layered configuration (defaults, YAML, env, flags)
//   - pkg/source: MySQL and PostgreSQL connections
//   - pkg/extract: the dataset queries
//   - pkg/formats, pkg/compression: snapshot encoding
//   - pkg/storage, pkg/uploader: S3, GCS and local object stores
//   - pkg/metrics, pkg/observability, pkg/notify: run telemetry
//   - internal/runner: run orchestration and the JSON summary
package sqlsnap
