// Package tcpserver fans one shared byte stream out to a small, fixed number
// of TCP clients.
//
// Each client owns a read cursor into the shared stream and drains it at its
// own pace. Writes never block the tick: a client whose socket cannot take
// more data simply falls behind, and if it falls far enough behind for the
// producer to overwrite its unread bytes its cursor is fast-forwarded (the
// client sees a gap). Clients that error, close, or stop accepting data for a
// full liveness window are dropped so their slot can be reused.
//
// The server only exists while the network is usable: a small state machine
// (OFF, NETWORK_STARTED, RUNNING) requests network access, waits for the link
// to settle, binds the listener, and tears everything down again when the
// network goes away or the service is disabled.
//
// A Server is driven from a single goroutine via Tick and Retain.
package tcpserver
