// Package command defines the gridbackup-cli commands using urfave/cli/v2.
//
//   - root.go: App, global flags, client and output helpers
//   - backup.go: backup list, save, run, restore and history
//   - system.go: status, health and ready checks
//   - shell.go: interactive console started when no command is given
//
// Every command talks to the admin HTTP API through connection.HTTPClient
// and renders its result with the output package.
package command
