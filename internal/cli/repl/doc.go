// Package repl implements the interactive console of gridbackup-cli.
//
// Each line is split into arguments the way a chat command would be typed
// (double quotes group words, so "Rotor Arm" stays one grid name) and
// handed to an executor, normally the urfave/cli app. A trailing '?' lists
// matching commands instead of running anything.
package repl
