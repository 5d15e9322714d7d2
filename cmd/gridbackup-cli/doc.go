// Package main provides the entry point for gridbackup-cli.
//
// The CLI talks to the gridbackup-server admin API:
//
//	gridbackup-cli backup list Alice
//	gridbackup-cli backup restore Alice Outpost --version 2 --keep-position
//	gridbackup-cli --output json system status
//
// Run without arguments to start an interactive shell.
package main
