package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"predex.com/pkg/xerr"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Identity 是鉴权通过后挂在 session / request 上的身份
type Identity struct {
	UserID string
	Role   string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Verifier 校验 bearer token，网关和 HTTP 层共用
type Verifier interface {
	Verify(token string) (Identity, error)
}

type Config struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
	// 浏览器端 session cookie 名
	Cookie string `mapstructure:"cookie"`
}

type HS256 struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewHS256(c Config) (*HS256, error) {
	if c.Secret == "" {
		return nil, errors.New("auth: empty jwt secret")
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &HS256{secret: []byte(c.Secret), issuer: c.Issuer, ttl: ttl, now: time.Now}, nil
}

func (h *HS256) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, xerr.NewErrCode(xerr.Unauthorized)
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(h.now),
	}
	if h.issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return h.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, xerr.Newf(xerr.Unauthorized, "invalid token: %v", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, xerr.NewErrCode(xerr.Unauthorized)
	}
	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	if uid == "" {
		return Identity{}, xerr.New(xerr.Unauthorized, "token without user id")
	}
	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return Identity{UserID: uid, Role: role}, nil
}

// Issue 签发 token；线上由账户服务签发，这里给运维脚本和测试用
func (h *HS256) Issue(userID, role string) (string, error) {
	now := h.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    h.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}
