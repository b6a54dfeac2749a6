package observability

import (
	"testing"

	"github.com/rs/zerolog/log"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordFrameSent("/dev/pgpcard_0", "register")
	RecordBusyRetry("/dev/pgpcard_0")
	RecordBusyDrop("/dev/pgpcard_0", "data")
	RecordFrameReceived("/dev/pgpcard_0", "data")
	RecordRxError("/dev/pgpcard_0")
	RecordUnexpectedFrame("/dev/pgpcard_0")
	RecordReplyOverflow("/dev/pgpcard_0")
	SetDataQueueDepth("/dev/pgpcard_0", 3)

	log.Info().Msg("observability/metrics: registration idempotent and recording paths executed")
}
