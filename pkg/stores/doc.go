// Package stores provides the durable backends for registry snapshots.
//
// A snapshot is an opaque, already encoded blob. Backends only move whole
// blobs: Save replaces the stored snapshot in one step and Load returns the
// newest one, or ErrSnapshotNotFound when nothing was saved yet.
//
//   - FileStore writes a single file atomically (temp file, fsync, rename).
//   - SQLiteStore keeps a bounded history of snapshots in SQLite, with the
//     schema managed by embedded migrations.
//   - S3Store keeps one object in an S3 bucket.
package stores
