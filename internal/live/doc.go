// ABOUTME: Package documentation for the live channel client.
// ABOUTME: Describes handle ownership, status semantics, and delivery guarantees.

// Package live owns the persistent bidirectional connection of an open
// conversation view.
//
// A Dialer opens one Handle per conversation. The handle joins the room
// keyed by the conversation id, exposes a fire-and-forget Send, streams
// inbound messages over Messages, and reports a connection Status of
// connecting, online, or offline.
//
// Status is owned here exclusively. It moves connecting→online on a
// successful handshake and to offline on transport loss or a failed dial;
// offline is terminal for a handle. There is no automatic reconnect: a new
// Open yields a fresh handle in connecting state and re-issues the room
// join, because room membership does not survive a transport drop.
//
// Transport failures are never raised as errors to callers. Send accepts
// messages even while offline (they simply carry no delivery guarantee)
// and the inbound channel closes when the transport is gone.
package live
