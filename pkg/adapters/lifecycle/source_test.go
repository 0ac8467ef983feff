package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/keel/pkg/core"
)

func TestSourceBridgesIntegrityEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan core.IntegrityEvent, 1)
	src := NewSource(in)
	require.NoError(t, src.Start(ctx))

	in <- core.IntegrityEvent{Category: "payments", Result: core.VerifyResult{Category: "payments"}}

	select {
	case e := <-src.Events():
		assert.Equal(t, "payments: INVALID", e.String())
		ie, ok := e.(core.IntegrityEvent)
		require.True(t, ok)
		assert.Equal(t, "payments", ie.Category)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for bridged event")
	}

	close(in)
	select {
	case _, ok := <-src.Events():
		assert.False(t, ok, "output closes when input closes")
	case <-time.After(time.Second):
		t.Fatal("output channel was not closed")
	}
}
