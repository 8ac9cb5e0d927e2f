package orchestration

import events "github.com/koscakluka/livescribe/core/events"

type eventEmitter func(events.Event)

func newCallbackEventEmitter(opts StartOptions) eventEmitter {
	return func(event events.Event) {
		if opts.onEvent != nil {
			opts.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case events.TranscriptFragment:
			if opts.onTranscriptEvent != nil {
				opts.onTranscriptEvent(typedEvent)
			}
		case events.TranscriptBoundary:
			if opts.onTranscriptEvent != nil {
				opts.onTranscriptEvent(typedEvent)
			}
		case events.SessionFailed:
			if opts.onError != nil {
				opts.onError(typedEvent.Err)
			}
		}
	}
}
