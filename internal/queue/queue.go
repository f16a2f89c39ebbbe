package queue

import (
	"fmt"
	"time"

	"github.com/knowledgesnode/backend/internal/util"
	"github.com/knowledgesnode/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const (
	ArticleQueue = "article_queue"
	RelinkQueue  = "relink_queue"

	// ArticleProcessedTopic is published on the topic exchange after an
	// article completed.
	ArticleProcessedTopic = "article.processed"

	topicExchange = "pubsub_exchange"
	retryTTL      = int32(10000)
)

// Queues lists every work queue the worker consumes.
var Queues = []string{ArticleQueue, RelinkQueue}

func Init() *amqp091.Connection {
	user := util.GetEnvString("RABBITMQ_USER", "guest")
	pass := util.GetEnvString("RABBITMQ_PASSWORD", "guest")
	host := util.GetEnvString("RABBITMQ_HOST", "localhost")
	port := util.GetEnvString("RABBITMQ_PORT", "5672")

	connURL := fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		user,
		pass,
		host,
		port,
	)

	conn, err := amqp091.Dial(connURL)
	if err != nil {
		logger.Fatal("[Queue] Failed to connect to RabbitMQ", "err", err)
	}

	return conn
}

// SetupQueues declares each queue together with its dead-letter queue and
// a retry queue that hands messages back to it after a delay.
func SetupQueues(ch *amqp091.Channel, queueNames []string) error {
	err := ch.ExchangeDeclare(
		topicExchange,
		"topic",
		false,
		true,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", topicExchange, err)
	}

	for _, name := range queueNames {
		_, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", name, err)
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
			return fmt.Errorf("failed to declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		_, err = ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             retryTTL,
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

func PublishFIFO(ch *amqp091.Channel, queueName string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.Publish(
		"",
		queueName,
		false,
		false,
		publishing,
	)
}

func PublishTopic(ch *amqp091.Channel, topic string, data []byte) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}

	return ch.Publish(
		topicExchange,
		topic,
		false,
		false,
		publishing,
	)
}

// Sender publishes messages. *ChannelSender implements it on an AMQP
// channel.
type Sender interface {
	SendQueue(queueName string, data []byte) error
	SendTopic(topic string, data []byte) error
}

type ChannelSender struct {
	ch *amqp091.Channel
}

func NewChannelSender(ch *amqp091.Channel) *ChannelSender {
	return &ChannelSender{ch: ch}
}

func (s *ChannelSender) SendQueue(queueName string, data []byte) error {
	return PublishFIFO(s.ch, queueName, data)
}

func (s *ChannelSender) SendTopic(topic string, data []byte) error {
	return PublishTopic(s.ch, topic, data)
}
