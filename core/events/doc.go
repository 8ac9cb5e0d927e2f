// Package events defines the typed event contract between the streaming
// transport and its consumers.
//
// transcript events
//
//   - TranscriptFragment (transcript.fragment): non-empty recognized text,
//     append-only, delivered in arrival order.
//   - TranscriptBoundary (transcript.boundary): segmentation point carrying no
//     text. On the wire this is an empty message; [FromMessage] is the single
//     translation point.
//
// session events
//
//   - SessionOpened (session.opened): handshake completed, audio may flow.
//   - AudioFrameSent (session.audio_frame_sent): one encoded frame written.
//   - SessionFailed (session.failed): connection or capture failure; the
//     session is not reconnected.
//   - SessionClosed (session.closed): teardown completed.
package events
