// Package auth0 verifies Auth0 issued access tokens and mirrors the Auth0
// user directory into the local profile store.
//
// Pair the TokenValidator with sessions established through the OAuth
// redirect flow, and use the Directory to enrich or sync profiles from the
// management API.
package auth0
