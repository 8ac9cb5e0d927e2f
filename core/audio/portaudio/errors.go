package portaudio

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/livescribe/core/audio"
)

func translateError(err error) error {
	var hostErr portaudio.UnanticipatedHostError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, portaudio.DeviceUnavailable):
		return fmt.Errorf("%w: %w", audio.ErrPermissionDenied, err)
	case errors.Is(err, portaudio.NoDefaultInputDevice),
		errors.Is(err, portaudio.HostApiNotFound),
		errors.Is(err, portaudio.InvalidDevice),
		errors.Is(err, portaudio.InvalidSampleRate),
		errors.Is(err, portaudio.InvalidChannelCount),
		errors.Is(err, portaudio.SampleFormatNotSupported):
		return fmt.Errorf("%w: %w", audio.ErrUnsupportedEnvironment, err)
	case errors.As(err, &hostErr):
		return fmt.Errorf("%w: %w", audio.ErrUnsupportedEnvironment, err)
	}
	return err
}
