// Package models defines the rows mirrored from Spotify and the shapes of the reports built on them.
//
// Stored rows:
//   - [User] : a Spotify account that has been synced
//   - [Playlist] : a playlist owned by a user
//   - [Artist], [Album] : caches shared across users, never deleted by a sync
//   - [Track] : one occurrence of a track in a playlist
//
// Report shapes:
//   - [Frequency] : a top-N row for a [MediaType]
//   - [ReportRow] : one line of the flat CSV export
//
// A [Library] is the flattened result of a sync, written in one transaction.
package models
