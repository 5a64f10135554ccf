package xerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 是对外暴露的错误分类，和 HTTP / websocket 层共用
type Code string

const (
	BadQty            Code = "bad_qty"
	BadPrice          Code = "bad_price"
	BadTick           Code = "bad_tick"
	BadSide           Code = "bad_side"
	BadKind           Code = "bad_kind"
	MissingCostFn     Code = "missing_cost_fn"
	InsufficientFunds Code = "insufficient_funds"
	Unauthorized      Code = "unauthorized"
	Forbidden         Code = "forbidden"
	NotFound          Code = "not_found"
	EngineBusy        Code = "engine_busy"
	StoreUnavailable  Code = "store_unavailable"
	BadRequest        Code = "bad_request"
	Internal          Code = "internal"
)

type CodeError struct {
	Code Code   `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%s, Msg:%s", e.Code, e.Msg)
}

func New(code Code, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func Newf(code Code, format string, args ...any) error {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func NewErrCode(code Code) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// CodeOf 取出链路上第一个 CodeError 的分类
func CodeOf(err error) (Code, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}

func Is(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

func MapErrMsg(code Code) string {
	switch code {
	case BadQty:
		return "quantity must be a positive integer"
	case BadPrice:
		return "price must be a finite number"
	case BadTick:
		return "price must be a 0.1 tick within [0,10]"
	case BadSide:
		return "side must be YES or NO"
	case BadKind:
		return "kind must be LIMIT or MARKET"
	case MissingCostFn:
		return "budget given without a cost function"
	case InsufficientFunds:
		return "insufficient funds"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case NotFound:
		return "not found"
	case EngineBusy:
		return "engine busy"
	case StoreUnavailable:
		return "store unavailable"
	case BadRequest:
		return "bad request"
	default:
		return "internal error"
	}
}

// HTTPStatus maps a classification to a response status.
func HTTPStatus(code Code) int {
	switch code {
	case BadQty, BadPrice, BadTick, BadSide, BadKind, MissingCostFn, BadRequest:
		return http.StatusBadRequest
	case InsufficientFunds:
		return http.StatusPaymentRequired
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case EngineBusy:
		return http.StatusTooManyRequests
	case StoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
