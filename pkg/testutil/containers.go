package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// StartMongo runs a disposable MongoDB and returns its connection URL. The
// container is terminated when the test ends.
func StartMongo(t *testing.T) string {
	t.Helper()
	SkipIfShort(t)
	addr := startGeneric(t, "mongo:7", "27017/tcp",
		wait.ForListeningPort("27017/tcp").WithStartupTimeout(90*time.Second))
	return "mongodb://" + addr
}

// StartRabbitMQ runs a disposable RabbitMQ broker and returns its AMQP URL.
func StartRabbitMQ(t *testing.T) string {
	t.Helper()
	SkipIfShort(t)
	addr := startGeneric(t, "rabbitmq:3-alpine", "5672/tcp",
		wait.ForLog("Server startup complete").WithStartupTimeout(120*time.Second))
	return "amqp://guest:guest@" + addr + "/"
}

// StartRedis runs a disposable Redis and returns its connection URL.
func StartRedis(t *testing.T) string {
	t.Helper()
	SkipIfShort(t)
	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	return url
}

// startGeneric returns the host:port the container port is mapped to.
func startGeneric(t *testing.T, image, port string, strategy wait.Strategy) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port},
			WaitingFor:   strategy,
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start %s container: %v", image, err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("Failed to get port: %v", err)
	}
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}
