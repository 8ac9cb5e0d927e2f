package miniaudio

import (
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/livescribe/core/audio"
)

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, malgo.ErrAccessDenied):
		return fmt.Errorf("%w: %w", audio.ErrPermissionDenied, err)
	case errors.Is(err, malgo.ErrNoBackend),
		errors.Is(err, malgo.ErrNoDevice),
		errors.Is(err, malgo.ErrAPINotFound),
		errors.Is(err, malgo.ErrDeviceTypeNotSupported),
		errors.Is(err, malgo.ErrFormatNotSupported),
		errors.Is(err, malgo.ErrFailedToInitBackend):
		return fmt.Errorf("%w: %w", audio.ErrUnsupportedEnvironment, err)
	}
	return err
}
