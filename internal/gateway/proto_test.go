package gateway

import (
	stdjson "encoding/json"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var benchPayload = []byte(`{"eventId":"E1","depth":{"bids":[{"price":6,"qty":50},{"price":5.9,"qty":10}],"asks":[{"price":4.1,"qty":20}]}}`)

func TestFrame_IsValidEnvelope(t *testing.T) {
	var m struct {
		Type    string             `json:"type"`
		Payload stdjson.RawMessage `json:"payload"`
	}
	require.NoError(t, stdjson.Unmarshal(frame("depth", benchPayload), &m))
	assert.Equal(t, "depth", m.Type)
	assert.JSONEq(t, string(benchPayload), string(m.Payload))
}

func TestEnvelopeOf(t *testing.T) {
	head, err := envelopeOf(benchPayload)
	require.NoError(t, err)
	assert.Equal(t, "E1", head.EventID)
	assert.False(t, head.Reset)

	head, err = envelopeOf([]byte(`{"eventId":"E1","reset":true}`))
	require.NoError(t, err)
	assert.True(t, head.Reset)

	_, err = envelopeOf([]byte(`[1,2`))
	assert.Error(t, err)
}

// 预编码拼接 vs 每条消息重新 Marshal 信封
func BenchmarkFrame(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = frame("depth", benchPayload)
	}
}

func BenchmarkFrameMarshal(b *testing.B) {
	type envelope struct {
		Type    string             `json:"type"`
		Payload stdjson.RawMessage `json:"payload"`
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = json.Marshal(envelope{Type: "depth", Payload: benchPayload})
	}
}

func BenchmarkFrameStdMarshal(b *testing.B) {
	type envelope struct {
		Type    string             `json:"type"`
		Payload stdjson.RawMessage `json:"payload"`
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = stdjson.Marshal(envelope{Type: "depth", Payload: benchPayload})
	}
}
