// Package domain defines the core domain models for GridBackup.
//
// Domain models are pure value types without any IO dependencies.
// This package contains:
//
//   - Identity and Viewpoint: who owns grids and who is looking at one
//   - GraphGroup: a connected set of grid members backed up as one unit
//   - SnapshotFolder / SnapshotFile: the on-disk backup layout
//   - BackupJob / RunSummary: queue and scheduler work units
//   - Errors: coded domain errors
//
// The "biggest member wins" and folder-name matching rules live here as
// plain functions so they can be tested without a world.
package domain
