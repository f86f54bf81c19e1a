// Package catalog persists the names of logs the server has bound, so logs
// that are no longer configured remain discoverable after a restart.
package catalog
