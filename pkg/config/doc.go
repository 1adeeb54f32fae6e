// Package config loads dotapply configuration: engine settings and the
// profiles an apply can target.
//
// Sources are layered with koanf, later ones winning:
//  1. embedded defaults (embedded/defaults.toml)
//  2. the root config file, <dotfiles root>/dotapply.toml
//  3. DOTAPPLY_* environment variables, with "__" separating key levels
//     (DOTAPPLY_SETTINGS__BACKUPS=false)
//
// Configuration is read-only here; persisting it is the caller's job.
package config
