// Package dump persists per-connection snapshots of aggregated squares.
//
// The registry takes a Block for each connection on its dump cadence and
// hands it to a Worker through Enqueue. The Worker runs on its own goroutine:
// every interval it drains the pending blocks, keeps the first block per
// connection id and discards later ones, and writes the survivors through a
// Store. Stop performs one final drain so nothing enqueued before Stop is
// lost.
//
// # Stores
//
//   - FileStore: one "<id>.dmp" file per connection, replaced on every write
//   - MemoryStore: in-process, for tests and embedding
//   - SQLStore: one row per connection in any database/sql database
//   - S3Store: one object per connection in an S3 bucket
//
// # Formats
//
// FormatConcat writes the decimal digits of every value with no delimiter,
// byte-compatible with the files produced by earlier deployments.
// FormatLines writes one value per line and can be parsed back.
package dump
