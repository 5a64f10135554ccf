package bus

import "context"

// 三个共享频道，所有事件复用，payload 里带 eventId
const (
	ChannelTrade   = "trade"
	ChannelDepth   = "depth"
	ChannelPricing = "pricing"
)

var AllChannels = []string{ChannelTrade, ChannelDepth, ChannelPricing}

type Message struct {
	Channel string
	Payload []byte
}

type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe ctx 结束时退订并关闭返回的 chan
	Subscribe(ctx context.Context, channels []string) (<-chan Message, error)
	Close() error
}
