// Package zoom integrates with a Zoom-style cloud recording API using
// server-to-server OAuth. TokenSource feeds the credential cache; Client
// lists finished cloud recordings and streams their files to disk.
package zoom
