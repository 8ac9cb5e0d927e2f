package wavfile

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/livescribe/core/audio/wavfile"

var logger = otelslog.NewLogger(scopeName)
