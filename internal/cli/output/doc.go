// Package output renders gridbackup-cli results as a table, JSON or YAML.
//
// Table rendering reflects over structs and slices of structs. Field headers
// come from json tags. A `table:"wide"` tag hides a column unless --wide is
// set, `table:"bytes"` renders an integer as a human-readable size and
// `table:"-"` drops it.
package output
