// Package tasks mirrors a user's Spotify library into the store with real-time progress reporting.
//
// # Sync
//
// [SyncEngine.Run] performs a full library sync:
//
//  1. Resolves the current user when no user ID is given
//  2. Lists the user's playlists and keeps the ones the user owns ([OwnedPlaylists])
//  3. Fetches every playlist's items, a bounded number of playlists at a time
//  4. Flattens the items into playlist, artist, album and track rows ([Flatten])
//  5. Replaces the user's stored library in one transaction
//
// Local files, podcast episodes and items without a track ID are skipped. Only the first artist of
// a track is recorded, and album release dates are parsed by their precision ([ParseReleaseDate]).
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking, so a slow or absent reader never stalls a sync.
package tasks
