package engine

import (
	"time"

	"predex.com/internal/matching"
	"predex.com/pkg/xerr"
)

type CmdType uint8

const (
	CmdSubmit CmdType = iota + 1 // 下单
	CmdCancel                    // 撤单
	CmdDepth                     // 深度查询，也走 mailbox 串行
)

// Command 投递到事件 actor 的命令，结果通过 reply 同步返回
type Command struct {
	Type  CmdType
	ReqID string // 上游追踪用

	Order matching.OrderRequest
	Opts  []matching.AddOption

	CancelOrderID string

	reply chan Reply
}

type Reply struct {
	Result    matching.Result
	Cancelled bool
	Depth     matching.Depth
	Err       error
}

// Event 一次撮合（或撤单）产生的对外事实：成交和成交后的深度放在一起，保证先后顺序
type Event struct {
	EventID string
	// 同一事件 actor 内单调递增
	Seq    uint64
	ReqID  string
	Trades []matching.Trade
	Depth  matching.Depth
	At     time.Time
}

var (
	ErrEngineBusy = xerr.New(xerr.EngineBusy, "engine busy: mailbox full")
	ErrStopped    = xerr.New(xerr.EngineBusy, "engine stopped")
	ErrNoEvent    = xerr.New(xerr.BadRequest, "empty event id")
	ErrBadCommand = xerr.New(xerr.BadRequest, "bad command")
)
