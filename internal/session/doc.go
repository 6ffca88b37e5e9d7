// ABOUTME: Package documentation for the session lifecycle controller.
// ABOUTME: Describes states, the initialization sequence, and call handoff.

// Package session orchestrates the lifecycle of a consultation view.
//
// # States
//
// A Controller moves through four states:
//
//	idle → initializing → active → ended
//
// Start drives idle → initializing → active. A missing viewer identity or a
// conversation that cannot be resolved skips active entirely and lands in
// ended; the caller redirects to authentication or shows a blocking error.
// End (explicit end-session action or view teardown) drives any state to
// ended and closes the live channel handle exactly once.
//
// # Initialization sequence
//
//  1. Resolve the canonical conversation for the counterpart (fatal on error)
//  2. Load the history snapshot and seed the timeline (degraded on error,
//     never fatal; the view must say history may be incomplete)
//  3. Open the live channel handle for the conversation's room
//
// The session becomes active as soon as the open call is issued; the
// channel may still be connecting on the wire.
//
// # Call handoff
//
// Handoff derives a call session token from the conversation id and a call
// type. Both participants compute the same token, so the voice/video
// subsystem resolves the same call room without extra negotiation. Handoff
// never touches the chat channel: chat and call run independently, keyed by
// the same conversation.
//
// # Concurrency
//
// One conversation is active per mounted view. Manager enforces this:
// opening a second conversation ends the first, closing its channel before
// the new room join. Timeline mutations from the live consumer goroutine
// and local sends are serialized inside the timeline package.
package session
