package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()

	require.NoError(t, m.Register(reg))

	m.ObserveReceived("event")
	m.ObserveSent("request")
	m.RequestStarted()
	m.RequestFinished(time.Now())
	m.ObserveFramingError()
	m.ObserveDecodeError()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["minidap_messages_received_total"])
	assert.True(t, names["minidap_messages_sent_total"])
	assert.True(t, names["minidap_requests_inflight"])
	assert.True(t, names["minidap_requests_duration_seconds"])
	assert.True(t, names["minidap_stream_framing_errors_total"])
	assert.True(t, names["minidap_stream_decode_errors_total"])
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))
}

// A nil *Metrics must be a safe no-op everywhere, since instrumentation is
// optional on the connection.
func TestNilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveReceived("event")
		m.ObserveSent("request")
		m.RequestStarted()
		m.RequestFinished(time.Now())
		m.ObserveFramingError()
		m.ObserveDecodeError()
	})
}
