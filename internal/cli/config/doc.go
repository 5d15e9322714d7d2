// Package config holds gridbackup-cli preferences stored in
// ~/.gridbackup/cli.yaml. Values act as defaults: explicit flags and
// GRIDBACKUP_* environment variables win.
package config
