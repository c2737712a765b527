package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookChainOrderAndPanicSafety(t *testing.T) {
	var order []string
	h1 := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
			order = append(order, "before1")
			return ctx, km, append(d, '1'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { order = append(order, "after1") },
	}
	h2 := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
			order = append(order, "before2")
			return ctx, km, append(d, '2'), nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) { panic("boom") },
	}

	chain := NewHookChain(h1, nil, h2)
	_, _, data, err := chain.BeforeHandle(context.Background(), "signals", kafka.Message{}, []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "x12", string(data))

	assert.NotPanics(t, func() {
		chain.AfterHandle(context.Background(), "signals", kafka.Message{}, data, nil)
	})
	assert.Equal(t, []string{"before1", "before2", "after1"}, order)
}

func TestHookChainBeforePanicBecomesError(t *testing.T) {
	errs := 0
	chain := NewHookChain(
		HookFuncs{Err: func(context.Context, string, kafka.Message, []byte, error) { errs++ }},
		HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		}},
	)

	_, _, _, err := chain.BeforeHandle(context.Background(), "signals", kafka.Message{}, nil)

	var he *HookError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, "ERR_PANIC", he.Code)
	assert.Equal(t, 1, errs)
}

func TestJSONValidationHook(t *testing.T) {
	h := JSONValidationHook{}
	_, _, _, err := h.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte(`{"id":"1"}`))
	assert.NoError(t, err)

	_, _, _, err = h.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestLoggingHookStoresTraceID(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := LoggingHook{}.BeforeHandle(context.Background(), "t", km, nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", TraceIDFrom(ctx))
	assert.Empty(t, TraceIDFrom(context.Background()))
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestBackoffWithJitterStaysInRange(t *testing.T) {
	for attempt := 1; attempt < 10; attempt++ {
		d := backoffWithJitter(0, 0, attempt)
		assert.Positive(t, int64(d))
	}
}
