package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studyontology/backend/internal/artifact"
	"github.com/studyontology/backend/internal/ingest"
	"github.com/studyontology/backend/internal/queue"
	"github.com/studyontology/backend/internal/storage"
	"github.com/studyontology/backend/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/studyontology/backend/pkg/ai"
	oai "github.com/studyontology/backend/pkg/ai/ollama"
	gai "github.com/studyontology/backend/pkg/ai/openai"
	"github.com/studyontology/backend/pkg/canvas"
	"github.com/studyontology/backend/pkg/enrich"
	"github.com/studyontology/backend/pkg/graph"
	"github.com/studyontology/backend/pkg/leaselock"
	"github.com/studyontology/backend/pkg/logger"
	"github.com/studyontology/backend/pkg/logger/console"
	storepgx "github.com/studyontology/backend/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	// Init s3 client
	s3Client := storage.NewS3Client(ctx)

	// GraphAiClient
	adapter := util.GetEnv("AI_ADAPTER")
	var aiClient ai.GraphAIClient

	switch adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Could not create Ollama client", "err", err)
		}
		aiClient = client
	default:
		aiClient = gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			ExtractionModel: util.GetEnv("AI_CHAT_EXTRACT_MODEL"),

			ChatURL: util.GetEnv("AI_CHAT_URL"),
			ChatKey: util.GetEnv("AI_CHAT_KEY"),
		})
	}

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	graphStore := storepgx.NewGraphDBStorageWithConnection(pgConn)
	if err := graphStore.InitializeSchema(ctx); err != nil {
		logger.Fatal("Failed to initialize graph schema", "err", err)
	}
	locks := leaselock.New(pgConn)
	if err := locks.EnsureSchema(ctx); err != nil {
		logger.Fatal("Failed to initialize lock schema", "err", err)
	}

	var reader artifact.Reader = artifact.NewLocalReader(artifact.UploadRoot())
	if util.GetEnvString("ARTIFACT_STORE", "local") == "s3" {
		reader = artifact.NewS3Reader(s3Client)
	}

	pipeline := graph.NewPipeline(aiClient, enrich.NewOpenAlexEnricher())
	svc := ingest.NewService(graphStore, reader, pipeline, canvas.NewClient(), locks)

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	logger.Info("Listening for messages")

	// Single consumer channel with prefetch=1 so one job is processed
	// at a time.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	err = consumerCh.Qos(1, 0, true)
	if err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.IngestQueue,
		"ingest_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.IngestQueue, "err", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Stopping consumer", "queue", queue.IngestQueue)
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Info("Message channel closed", "queue", queue.IngestQueue)
					return
				}
				startTime := time.Now()
				logger.Info("Received message", "queue", queue.IngestQueue)

				var req ingest.Request
				if err := json.Unmarshal(msg.Body, &req); err != nil {
					// A malformed job never becomes valid on retry.
					logger.Error("Discarding malformed ingest job", "err", err)
					if err := msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					continue
				}

				res, processingErr := svc.Ingest(ctx, req)

				// If there was an error send to retry or dead-letter, otherwise ack the message
				if processingErr != nil {
					logger.Error("Error processing message", "artifact", req.ArtifactPath, "err", processingErr)
					handleProcessingError(consumerCh, msg)
				} else {
					if err := msg.Ack(false); err != nil {
						logger.Error("Failed to ack message", "err", err)
					}
					logger.Info(
						"Message processed successfully",
						"artifact", req.ArtifactPath,
						"already_processed", res.AlreadyProcessed,
						"added_entities", res.AddedEntities,
						"added_relationships", res.AddedRelationships,
					)
				}

				metrics := aiClient.GetMetrics()
				aiDuration := time.Duration(metrics.DurationMs) * time.Millisecond
				aiHours := int(aiDuration.Hours())
				aiMinutes := int(aiDuration.Minutes()) % 60
				aiSeconds := int(aiDuration.Seconds()) % 60
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", fmt.Sprintf("%02d:%02d:%02d", aiHours, aiMinutes, aiSeconds),
				)

				processingDuration := time.Since(startTime)
				hours := int(processingDuration.Hours())
				minutes := int(processingDuration.Minutes()) % 60
				seconds := int(processingDuration.Seconds()) % 60
				logger.Info(
					"Processing time",
					"duration", fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds),
				)
				logger.Info("Waiting for next message")
				aiClient.ResetMetrics()
			}
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, exiting...")
}

func handleProcessingError(ch *amqp.Channel, msg amqp.Delivery) {
	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	// If message has been retried 10 times, send to dead-letter
	if retries >= 10 {
		logger.Info("Sending message to DLQ", "dlq", queue.IngestDLQ)
		pubErr := ch.Publish(
			"",
			queue.IngestDLQ,
			false,
			false,
			amqp.Publishing{
				ContentType: "application/json",
				Body:        msg.Body,
				Headers:     msg.Headers,
			},
		)
		if pubErr != nil {
			logger.Error("Failed to publish to DLQ", "dlq", queue.IngestDLQ, "err", pubErr)
			msg.Nack(false, true)
			return
		}
		msg.Ack(false)
		return
	}

	headers := msg.Headers
	if headers == nil {
		headers = amqp.Table{}
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.Publish(
		"",
		queue.IngestRetryQueue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", queue.IngestRetryQueue, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
