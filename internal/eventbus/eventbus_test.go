package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{ N int }

func TestPublishDispatchesByType(t *testing.T) {
	Use(New())
	defer Use(nil)

	var pings, pongs []int
	Subscribe(func(ctx context.Context, e ping) { pings = append(pings, e.N) })
	Subscribe(func(ctx context.Context, e pong) { pongs = append(pongs, e.N) })

	Publish(context.Background(), ping{N: 1})
	Publish(context.Background(), ping{N: 2})
	Publish(context.Background(), pong{N: 3})

	assert.Equal(t, []int{1, 2}, pings)
	assert.Equal(t, []int{3}, pongs)
}

func TestMultipleHandlersRunInOrder(t *testing.T) {
	Use(New())
	defer Use(nil)

	var order []string
	Subscribe(func(ctx context.Context, e ping) { order = append(order, "first") })
	Subscribe(func(ctx context.Context, e ping) { order = append(order, "second") })

	Publish(context.Background(), ping{})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestNoBusIsNoOp(t *testing.T) {
	Use(nil)

	called := false
	Subscribe(func(ctx context.Context, e ping) { called = true })
	require.NotPanics(t, func() {
		Publish(context.Background(), ping{N: 1})
	})
	assert.False(t, called)
}

func TestPublishWithNoSubscribers(t *testing.T) {
	Use(New())
	defer Use(nil)

	require.NotPanics(t, func() {
		Publish(context.Background(), pong{N: 9})
	})
}
