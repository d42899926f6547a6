//go:build integration

package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"citizen-system/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startNATS(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	endpoint, err := c.PortEndpoint(ctx, "4222/tcp", "nats")
	require.NoError(t, err)
	return endpoint
}

func TestNATS_RedeliversUntilAcked(t *testing.T) {
	cfg := config.QueueConfig{
		URL:         startNATS(t),
		Stream:      "CITIZEN_TEST",
		Durable:     "worker",
		MaxDeliver:  5,
		AckWait:     5 * time.Second,
		NakDelay:    50 * time.Millisecond,
		Concurrency: 2,
	}
	q, err := ConnectNATS(cfg)
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(context.Context, Job) error {
			if calls.Add(1) < 2 {
				return errors.New("transient")
			}
			close(done)
			return nil
		})
	}()

	require.NoError(t, q.Publish(ctx, NewJob(KindActivation, "p1")))

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("任务没有被重新投递")
	}
	assert.Equal(t, int32(2), calls.Load())
}
