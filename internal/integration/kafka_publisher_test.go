//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/storm-vision-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-vision-service/internal/adapter/store"
	"github.com/couchcryptid/storm-vision-service/internal/domain"
	"github.com/couchcryptid/storm-vision-service/internal/observability"
	"github.com/couchcryptid/storm-vision-service/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-weather-analyses"

const analysisJSON = `{
	"explanation": "Hurricane making landfall near Tampa Bay.",
	"locationName": "Tampa, Florida",
	"temperature": 28,
	"windSpeed": 160,
	"center": {"lat": 27.95, "lon": -82.46},
	"stormTrack": [
		{"hour": 0, "intensity": "Cat 3", "x": 20, "y": 80},
		{"hour": 12, "intensity": "Cat 4", "x": 40, "y": 60}
	]
}`

type publishedMessage struct {
	Analysis domain.WeatherAnalysis
	Key      string
	Headers  map[string]string
}

type fixedAnalyzer struct{}

func (fixedAnalyzer) Analyze(context.Context, domain.SourceImage) ([]byte, error) {
	return []byte(analysisJSON), nil
}

func (fixedAnalyzer) Enhance(context.Context, domain.WeatherAnalysis) (domain.SourceImage, error) {
	return domain.SourceImage{}, fmt.Errorf("enhance not supported")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the lifetime of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("storm-vision-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer func() { _ = cc.Close() }()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// readPublished reads a single message from the topic and deserializes it.
func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from analysis topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var a domain.WeatherAnalysis
	require.NoError(t, json.Unmarshal(msg.Value, &a), "unmarshal analysis message")

	return publishedMessage{Analysis: a, Key: string(msg.Key), Headers: headers}
}

func newConsumer(t *testing.T, broker string) *kafkago.Reader {
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaWriter verifies that the publisher writes the analysis with its
// key and headers.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	writer := kafka.NewWriter([]string{broker}, testTopic, observability.NewMetricsForTesting(), discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	created := time.Date(2024, time.September, 26, 15, 0, 0, 0, time.UTC)
	require.NoError(t, writer.Publish(ctx, domain.WeatherAnalysis{
		ID:           "wa-test",
		CreatedAt:    created,
		LocationName: "Tampa, Florida",
		Explanation:  "Landfall expected overnight.",
	}))

	pm := readPublished(ctx, t, newConsumer(t, broker))
	assert.Equal(t, "wa-test", pm.Key)
	assert.Equal(t, "Tampa, Florida", pm.Headers["location"])
	assert.Equal(t, "2024-09-26T15:00:00Z", pm.Headers["created_at"])
	assert.Equal(t, "Landfall expected overnight.", pm.Analysis.Explanation)
}

// TestAnalyzePublishes runs an analysis through the service with a real
// broker and checks that exactly one event arrives.
func TestAnalyzePublishes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	metrics := observability.NewMetricsForTesting()
	writer := kafka.NewWriter([]string{broker}, testTopic, metrics, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	svc := pipeline.New(pipeline.Config{
		Analyzer:  fixedAnalyzer{},
		Store:     store.NewMemory(),
		Publisher: writer,
	}, discardLogger(), metrics)

	snap, err := svc.Analyze(ctx, domain.SourceImage{Data: []byte("fake-image"), MIMEType: "image/png", FileName: "storm.png"}, false)
	require.NoError(t, err)

	consumer := newConsumer(t, broker)
	pm := readPublished(ctx, t, consumer)
	assert.Equal(t, snap.Analysis.ID, pm.Key)
	assert.Equal(t, "Tampa, Florida", pm.Headers["location"])
	assert.Equal(t, "storm.png", pm.Analysis.FileName)
	require.Len(t, pm.Analysis.StormTrack, 2)
	assert.Equal(t, "Cat 4", pm.Analysis.StormTrack[1].Intensity)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected a single analysis event")
}
