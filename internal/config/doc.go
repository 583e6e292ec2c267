// Package config loads and validates colorflow configuration from TOML.
//
// Load resolves the config path (explicit flag or ~/.config/colorflow),
// decodes over Default() so unset fields keep their defaults, expands ~ in
// path fields, and validates the result. The embedded sample_config.toml is
// written by "colorflow config init".
package config
