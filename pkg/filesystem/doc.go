// Package filesystem provides the OS-backed implementation of types.FS.
//
// The in-memory implementation used by tests lives in pkg/testutil.
package filesystem
