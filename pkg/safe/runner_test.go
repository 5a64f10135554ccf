package safe

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"predex.com/pkg/metrics"
)

func TestGo_RecoversPanic(t *testing.T) {
	before := testutil.ToFloat64(metrics.GoroutinePanics.WithLabelValues("boom"))
	done := make(chan struct{})
	Go("boom", func() {
		defer close(done)
		panic("kaboom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.GoroutinePanics.WithLabelValues("boom")) == before+1
	}, time.Second, 5*time.Millisecond)
}

func TestGoCtx_PassesContext(t *testing.T) {
	type k struct{}
	ctx := context.WithValue(context.Background(), k{}, "v")
	got := make(chan any, 1)
	GoCtx(ctx, "ctx", func(ctx context.Context) { got <- ctx.Value(k{}) })
	assert.Equal(t, "v", <-got)
}
