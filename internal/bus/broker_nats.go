package bus

import (
	"context"
	"strings"

	"github.com/nats-io/nats.go"
)

type NatsBroker struct {
	nc *nats.Conn
}

func NewNatsBroker(url string, opts ...nats.Option) (*NatsBroker, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBroker{nc: nc}, nil
}

func (b *NatsBroker) Publish(_ context.Context, channel string, payload []byte) error {
	return b.nc.Publish(channelToSubject(channel), payload)
}

func (b *NatsBroker) Subscribe(ctx context.Context, channels []string) (<-chan Message, error) {
	out := newSink(8192)

	// 保存订阅，退出时取消
	subs := make([]*nats.Subscription, 0, len(channels))
	for _, c := range channels {
		sub, err := b.nc.Subscribe(channelToSubject(c), func(m *nats.Msg) {
			// 慢消费者直接丢，避免把 NATS 回调卡死
			out.offer(Message{Channel: subjectToChannel(m.Subject), Payload: m.Data})
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	// 确保服务端已登记订阅
	if err := b.nc.Flush(); err != nil {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		return nil, err
	}

	go func() {
		<-ctx.Done()
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		out.close()
	}()
	return out.ch, nil
}

func (b *NatsBroker) Close() error {
	if b.nc != nil {
		_ = b.nc.Drain()
		b.nc.Close()
	}
	return nil
}

func channelToSubject(c string) string { return "predex." + strings.ReplaceAll(c, ":", ".") }

func subjectToChannel(s string) string {
	return strings.ReplaceAll(strings.TrimPrefix(s, "predex."), ".", ":")
}
