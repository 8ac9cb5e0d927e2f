package events

const (
	// KindSessionOpened identifies a streaming session that finished its handshake.
	KindSessionOpened Kind = "session.opened"
	// KindSessionClosed identifies a streaming session that was torn down.
	KindSessionClosed Kind = "session.closed"
	// KindSessionFailed identifies a streaming session that failed.
	KindSessionFailed Kind = "session.failed"
	// KindAudioFrameSent identifies an encoded frame written to the session.
	KindAudioFrameSent Kind = "session.audio_frame_sent"
)

// SessionOpened marks a session ready to accept audio.
type SessionOpened struct {
	Base
	SessionID string
}

// NewSessionOpened creates a session opened event.
func NewSessionOpened(sessionID string) SessionOpened {
	return SessionOpened{Base: NewBase(KindSessionOpened), SessionID: sessionID}
}

// SessionClosed marks the end of a session.
type SessionClosed struct {
	Base
	SessionID string
}

// NewSessionClosed creates a session closed event.
func NewSessionClosed(sessionID string) SessionClosed {
	return SessionClosed{Base: NewBase(KindSessionClosed), SessionID: sessionID}
}

// SessionFailed reports an error that ended or prevented a session.
type SessionFailed struct {
	Base
	SessionID string
	Err       error
}

// NewSessionFailed creates a session failed event.
func NewSessionFailed(sessionID string, err error) SessionFailed {
	return SessionFailed{Base: NewBase(KindSessionFailed), SessionID: sessionID, Err: err}
}

// AudioFrameSent reports a frame handed to the transport.
type AudioFrameSent struct {
	Base
	Samples int
	Bytes   int
}

// NewAudioFrameSent creates an audio frame sent event.
func NewAudioFrameSent(samples, bytes int) AudioFrameSent {
	return AudioFrameSent{Base: NewBase(KindAudioFrameSent), Samples: samples, Bytes: bytes}
}
