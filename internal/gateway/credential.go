package gateway

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

const (
	DefaultCookie = "predex_session"
	// 子协议携带 token：Sec-WebSocket-Protocol: bearer, <token>
	bearerProtocol = "bearer"
)

type credSource string

const (
	credNone        credSource = ""
	credCookie      credSource = "cookie"
	credHeader      credSource = "header"
	credQuery       credSource = "query"
	credSubprotocol credSource = "subprotocol"
)

// extractCredential 按优先级取第一个出现的来源：cookie > Authorization > ?token= > 子协议
func extractCredential(r *http.Request, cookieName string) (string, credSource) {
	if cookieName == "" {
		cookieName = DefaultCookie
	}
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, credCookie
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:]), credHeader
		}
		return "", credHeader
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, credQuery
	}
	if protos := websocket.Subprotocols(r); len(protos) > 0 {
		if len(protos) >= 2 && strings.EqualFold(protos[0], bearerProtocol) {
			return protos[1], credSubprotocol
		}
	}
	return "", credNone
}
