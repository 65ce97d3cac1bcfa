// Package repositories implements SQL persistence for the mirrored library, the reports built on it, and server-side sessions.
//
// All queries are written with "?" placeholders and rebound for the connection's driver, so the same
// repositories serve SQLite and PostgreSQL.
//
// Key Implementations:
//   - [UserRepository] : synced Spotify user IDs
//   - [LibraryRepository] : the delete-and-reinsert sync write and playlist/track reads
//   - [ReportRepository] : top-N frequency queries and the flat export join
//   - [SessionRepository] : opaque session blobs with expiry
package repositories
