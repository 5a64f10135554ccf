package xerr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("submit: %w", NewErrCode(BadTick))
	code, ok := CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, BadTick, code)
	assert.True(t, Is(err, BadTick))
	assert.False(t, Is(err, BadQty))
}

func TestCodeOf_Plain(t *testing.T) {
	_, ok := CodeOf(fmt.Errorf("boom"))
	assert.False(t, ok)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(BadQty))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatus(Unauthorized))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(EngineBusy))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(Internal))
}

func TestError_Format(t *testing.T) {
	assert.Equal(t, "ErrCode:bad_qty, Msg:x", New(BadQty, "x").Error())
}
