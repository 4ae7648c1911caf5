// Package terminal wraps a pseudo-terminal pair and the process attached
// to its slave side.
//
// A PTY is opened pending: the device exists but nothing runs on it until
// Start is called with the first known window size. The parent keeps the
// master side for I/O; the slave is handed to the child as its controlling
// terminal and closed in the parent once the child is running.
package terminal
