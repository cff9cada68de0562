// Package config loads, defaults, normalizes, and validates the TOML
// configuration shared by the reel daemon and CLI.
//
// Load resolves the config path (explicit flag, ~/.config/reel/config.toml,
// or a project-local reel.toml), merges the file over built-in defaults,
// expands filesystem paths, applies environment fallbacks for secrets, and
// validates the result. Callers receive the resolved path and whether a
// file was actually found so they can hint at `reel config init`.
package config
