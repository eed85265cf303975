package mq_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docvault/pkg/configs"
	"github.com/yeisme/docvault/pkg/internal/storage/mq"
)

func TestRegisteredTypes(t *testing.T) {
	assert.Equal(t,
		[]configs.MQType{configs.MQTypeGoChannel, configs.MQTypeNATS, configs.MQTypeRedis},
		mq.GetRegisteredMQTypes())
}

func TestUnsupportedType(t *testing.T) {
	_, err := mq.New(context.Background(), configs.MQConfig{Type: "kafka"})
	require.ErrorContains(t, err, "unsupported mq type")
}

func TestConsumerOrderAndRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := mq.New(ctx, configs.MQConfig{Type: configs.MQTypeGoChannel},
		mq.WithMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)

	defer client.Close()

	var (
		mu       sync.Mutex
		seen     []string
		failOnce = true
	)

	require.NoError(t, client.AddConsumer("test", "files", func(msg *message.Message) error {
		mu.Lock()
		defer mu.Unlock()

		seen = append(seen, string(msg.Payload))

		if string(msg.Payload) == "b" && failOnce {
			failOnce = false

			return errors.New("transient")
		}

		return nil
	}))

	go func() { _ = client.Run(ctx) }()
	<-client.Running()

	require.NoError(t, client.Publish(ctx, "files",
		message.NewMessage(watermill.NewUUID(), []byte("a")),
		message.NewMessage(watermill.NewUUID(), []byte("b")),
		message.NewMessage(watermill.NewUUID(), []byte("c")),
	))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(seen) == 4
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"a", "b", "b", "c"}, seen)
	mu.Unlock()
}

func TestPublishNothing(t *testing.T) {
	client, err := mq.New(context.Background(), configs.MQConfig{Type: configs.MQTypeGoChannel})
	require.NoError(t, err)

	defer client.Close()

	require.NoError(t, client.Publish(context.Background(), "files"))
}

func TestLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer

	adapter := mq.NewLoggerAdapter(zerolog.New(&buf).Level(zerolog.DebugLevel)).
		With(watermill.LogFields{"handler": "files"})

	adapter.Trace("noise", nil)
	assert.Empty(t, buf.String())

	adapter.Info("router started", watermill.LogFields{"topic": "dv"})
	assert.Contains(t, buf.String(), `"level":"debug"`)
	assert.Contains(t, buf.String(), `"handler":"files"`)
	assert.Contains(t, buf.String(), `"topic":"dv"`)

	buf.Reset()
	adapter.Error("handler failed", errors.New("boom"), nil)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), `"error":"boom"`)
}
