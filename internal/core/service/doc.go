// Package service provides the backup engine and the operator entry points.
//
// Components, leaf-first:
//
//   - GridResolver: turns a name/id token or a viewpoint into graph groups
//   - BackupQueue: single-flight, bounded-concurrency export of one group
//   - BackupScheduler: the Idle/Running sweep state machine
//   - BackupService: list, save, run and restore as an operator sees them
//
// The world and the serializer are external collaborators described by the
// WorldGridSource and GridSerializer interfaces. Every call into them is
// marshalled onto a single simthread.Dispatcher; snapshot file I/O runs on
// the calling worker.
package service
