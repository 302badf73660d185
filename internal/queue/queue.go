package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/studyontology/backend/internal/util"
	"github.com/studyontology/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// IngestQueue carries asynchronous ingestion jobs. Failed deliveries
// cycle through the retry queue and end up in the DLQ once the retry
// budget is spent.
const (
	IngestQueue      = "ingest_queue"
	IngestRetryQueue = IngestQueue + "_retry"
	IngestDLQ        = IngestQueue + "_dlq"
)

func Init() *amqp091.Connection {
	user := util.GetEnv("RABBITMQ_USER")
	pass := util.GetEnv("RABBITMQ_PASSWORD")
	host := util.GetEnv("RABBITMQ_HOST")
	port := util.GetEnv("RABBITMQ_PORT")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares the ingestion queue plus its retry and dead
// letter companions. Messages rejected into the retry queue flow back
// into the main queue after the TTL.
func SetupQueues(ch *amqp091.Channel) error {
	queues := []string{IngestQueue}
	for _, name := range queues {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", name, "err", err)
		}

		dlqName := name + "_dlq"
		_, err = ch.QueueDeclare(
			dlqName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", dlqName, "err", err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(10000),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			logger.Fatal("QueueDeclare failed", "queue", retryName, "err", err)
		}
	}

	return nil
}

// PublishFIFO publishes a persistent message onto a queue.
func PublishFIFO(ch *amqp091.Channel, queueName string, data []byte) error {
	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	err = ch.Publish(
		"",
		q.Name,
		false,
		false,
		publishing,
	)
	if err != nil {
		return err
	}

	return nil
}

// PublishIngestJob enqueues an ingestion job payload.
func PublishIngestJob(ch *amqp091.Channel, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode ingest job: %w", err)
	}
	return PublishFIFO(ch, IngestQueue, data)
}
