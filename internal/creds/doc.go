// Package creds caches per-account bearer tokens for the platform API.
//
// Every stage executor that talks to the platform shares one Cache per
// process. The cache keeps refreshes deduplicated per account: however many
// downloads run concurrently for an account, at most one token refresh is in
// flight for it, and unrelated accounts never wait on each other.
package creds
