// Package services talks to Spotify: the accounts service for OAuth2 tokens and the Web API for
// catalog reads.
//
// # Authorization
//
// [Authenticator] wraps an [oauth2.Config] for the authorization-code flow. [TokenManager] keeps
// a session's [Tokens] usable: a token past its expiry (which already has [ExpiryBuffer] taken
// off) is exchanged for a new one through the refresh grant, and the caller persists the result.
//
// # Catalog
//
// [SpotifyService] implements [Catalog] with the zmb3/spotify client. Listings follow Spotify's
// "next" links until exhausted and every request waits on a shared [rate.Limiter].
//
// # Error Handling
//
// Services wrap typed errors from the shared package:
//   - [shared.ErrMissingCredentials] : client id, secret or redirect URI not configured
//   - [shared.ErrAuthFailed] : authorization code rejected
//   - [shared.ErrNotAuthenticated] : no usable token, or the Web API answered 401
//   - [shared.ErrRefreshFailed] : refresh grant rejected
//   - [shared.ErrPlaylistNotFound] : playlist ID not found
//   - [shared.ErrAPIRequest] : any other Web API failure
package services
