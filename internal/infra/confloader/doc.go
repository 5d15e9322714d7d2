// Package confloader loads layered configuration with koanf.
//
// Sources, highest priority first:
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (GRIDBACKUP_*)
//  3. YAML configuration file
//  4. Default values already present in the target struct
//
// Environment variables map onto koanf keys by matching against the koanf
// tags of the target struct, so GRIDBACKUP_BACKUP_KEEP_PER_GRID resolves
// to backup.keep_per_grid rather than backup.keep.per.grid.
//
// Watcher notifies callers when the configuration file changes on disk.
package confloader
