package gateway

import (
	"sync"

	"github.com/segmentio/encoding/json"
)

// 自定义关闭码（4000-4999 应用保留段）
const (
	CloseBadRequest   = 4400
	CloseUnauthorized = 4401
)

// ClientMsg 客户端上行，目前只有 ping
type ClientMsg struct {
	Type string `json:"type"`
}

var writeBufPool sync.Pool

var pongFrame = []byte(`{"type":"pong"}`)

// frame 预编码下行消息 {"type":..., "payload":...}；payload 已是 JSON
func frame(typ string, payload []byte) []byte {
	b := make([]byte, 0, len(typ)+len(payload)+24)
	b = append(b, `{"type":"`...)
	b = append(b, typ...)
	b = append(b, `","payload":`...)
	b = append(b, payload...)
	b = append(b, '}')
	return b
}

// envelope 只解出路由需要的字段，payload 原样转发
type envelope struct {
	EventID string `json:"eventId"`
	// pricing 墓碑，见 relay.PricingReset
	Reset bool `json:"reset"`
}

func envelopeOf(payload []byte) (envelope, error) {
	var head envelope
	err := json.Unmarshal(payload, &head)
	return head, err
}
