package metrics

import "go.opentelemetry.io/contrib/bridges/otelslog"

const scopeName = "github.com/koscakluka/livescribe/internal/metrics"

var logger = otelslog.NewLogger(scopeName)
