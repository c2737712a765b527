package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	xlogger "SignalPulse/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Brokers     []string
	Lookback    time.Duration // 0 replays each partition from its first offset
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *xlogger.Logger
}

// WithConsumerBrokers sets Kafka brokers.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

// WithConsumerLookback starts every partition at the first message newer than
// now minus d instead of at its first offset.
func WithConsumerLookback(d time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		if d > 0 {
			c.Lookback = d
		}
	}
}

// WithConsumerWorkers sets number of worker goroutines.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if count > 0 {
			c.WorkerCount = count
		}
	}
}

// WithConsumerRetry configures retry attempts and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ sets a Kafka topic name for DLQ.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.DLQTopic = topic
	}
}

// WithConsumerFetch sets fetch min/max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

// WithConsumerBufferSize sets the internal channel buffer size.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithConsumerLogger sets the logger.
func WithConsumerLogger(l *xlogger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Logger = l
	}
}

// fetcher is the part of *kafka.Reader the consumer uses.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// partitionReader replays one partition. end is the high watermark seen when
// the partition was opened and next the offset expected from the reader.
type partitionReader struct {
	topic     string
	partition int
	next      int64
	end       int64
	r         fetcher
}

// Consumer replays the registered topics without a consumer group. Every
// process start reads each partition again from its first offset, or from the
// lookback point, so the handlers can rebuild state that lives in memory.
// Messages of one partition are handled one at a time, in offset order when
// WorkerCount is 1.
type Consumer struct {
	cfg      *ConsumerConfig
	log      *xlogger.Logger
	open     func(ctx context.Context, topic string) ([]*partitionReader, error)
	readers  []*partitionReader
	handlers map[string]MessageHandler
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	msgChan  chan *message
	dlq      *kafka.Writer
	hook     ConsumerHook

	lockMu    sync.Mutex
	partLocks map[string]map[int]*sync.Mutex
}

type message struct {
	topic string
	km    kafka.Message
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	c := &Consumer{
		cfg:       cfg,
		log:       cfg.Logger.With(xlogger.String("component", "kafka_consumer")),
		handlers:  make(map[string]MessageHandler),
		stopChan:  make(chan struct{}),
		msgChan:   make(chan *message, cfg.BufferSize),
		partLocks: make(map[string]map[int]*sync.Mutex),
		hook:      NoopHook{},
	}
	c.open = c.openTopic

	initConsumerMetricsOnce()

	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// RegisterHandler registers a message handler for its topic. It must be called before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("handler already registered", xlogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Prime opens every partition and handles its backlog synchronously, up to
// the end offset the partition had when it was opened. Start continues from
// where Prime stopped.
func (c *Consumer) Prime(ctx context.Context) error {
	if err := c.openAll(ctx); err != nil {
		return err
	}
	handled := 0
	for _, pr := range c.readers {
		for pr.next < pr.end {
			km, err := pr.r.FetchMessage(ctx)
			if err != nil {
				return fmt.Errorf("prime %s/%d at offset %d: %w", pr.topic, pr.partition, pr.next, err)
			}
			pr.next = km.Offset + 1
			c.process(&message{topic: pr.topic, km: km})
			handled++
		}
	}
	c.log.Info("kafka backlog replayed",
		xlogger.Strings("topics", c.topics()),
		xlogger.Int("partitions", len(c.readers)),
		xlogger.Int("messages", handled),
	)
	return nil
}

// Start opens the partitions if Prime did not and starts the workers.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.openAll(ctx); err != nil {
		return err
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.messageWorker()
	}
	for _, pr := range c.readers {
		c.wg.Add(1)
		go c.consumeMessages(pr)
	}

	c.log.Info("kafka consumer started",
		xlogger.Strings("topics", c.topics()),
		xlogger.Int("partitions", len(c.readers)),
		xlogger.Int("workers", c.cfg.WorkerCount),
		xlogger.Duration("lookback", c.cfg.Lookback),
	)
	return nil
}

// Stop stops the Kafka consumer gracefully.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)
		stopErr = c.waitForWg(ctx)
		close(c.msgChan)

		c.closeReaders()
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Error("close dlq writer failed", xlogger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

// Run starts the consumer, blocks until ctx is done and then stops it within stopTimeout.
func (c *Consumer) Run(ctx context.Context, stopTimeout time.Duration) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return c.Stop(stopCtx)
}

func (c *Consumer) topics() []string {
	out := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

func (c *Consumer) openAll(ctx context.Context) error {
	if c.readers != nil {
		return nil
	}
	if len(c.handlers) == 0 {
		return errors.New("no handlers registered")
	}
	readers := make([]*partitionReader, 0, len(c.handlers))
	for _, topic := range c.topics() {
		prs, err := c.open(ctx, topic)
		if err != nil {
			c.readers = readers
			c.closeReaders()
			return fmt.Errorf("open topic %s: %w", topic, err)
		}
		readers = append(readers, prs...)
	}
	c.readers = readers
	return nil
}

func (c *Consumer) closeReaders() {
	for _, pr := range c.readers {
		if err := pr.r.Close(); err != nil {
			c.log.Error("close reader failed",
				xlogger.String("topic", pr.topic),
				xlogger.Int("partition", pr.partition),
				xlogger.Error(err),
			)
		}
	}
	c.readers = nil
}

// openTopic creates one reader per partition of topic, positioned at the
// replay start.
func (c *Consumer) openTopic(ctx context.Context, topic string) ([]*partitionReader, error) {
	partitions, err := c.readPartitions(ctx, topic)
	if err != nil {
		return nil, err
	}
	out := make([]*partitionReader, 0, len(partitions))
	for _, p := range partitions {
		start, end, err := c.replayRange(ctx, topic, p.ID)
		if err != nil {
			for _, pr := range out {
				_ = pr.r.Close()
			}
			return nil, fmt.Errorf("offsets of partition %d: %w", p.ID, err)
		}
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:   c.cfg.Brokers,
			Topic:     topic,
			Partition: p.ID,
			MinBytes:  c.cfg.MinBytes,
			MaxBytes:  c.cfg.MaxBytes,
		})
		if err := r.SetOffset(start); err != nil {
			_ = r.Close()
			for _, pr := range out {
				_ = pr.r.Close()
			}
			return nil, fmt.Errorf("seek partition %d: %w", p.ID, err)
		}
		out = append(out, &partitionReader{topic: topic, partition: p.ID, next: start, end: end, r: r})
	}
	return out, nil
}

func (c *Consumer) readPartitions(ctx context.Context, topic string) ([]kafka.Partition, error) {
	var lastErr error
	for _, broker := range c.cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		partitions, err := conn.ReadPartitions(topic)
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return partitions, nil
	}
	return nil, fmt.Errorf("read partitions: %w", lastErr)
}

func (c *Consumer) replayRange(ctx context.Context, topic string, partition int) (start, end int64, err error) {
	var lastErr error
	for _, broker := range c.cfg.Brokers {
		conn, err := kafka.DialLeader(ctx, "tcp", broker, topic, partition)
		if err != nil {
			lastErr = err
			continue
		}
		start, end, err = c.readRange(conn)
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return start, end, nil
	}
	return 0, 0, lastErr
}

func (c *Consumer) readRange(conn *kafka.Conn) (start, end int64, err error) {
	first, last, err := conn.ReadOffsets()
	if err != nil {
		return 0, 0, err
	}
	if c.cfg.Lookback <= 0 {
		return first, last, nil
	}
	at, err := conn.ReadOffset(time.Now().Add(-c.cfg.Lookback))
	if err != nil {
		return 0, 0, err
	}
	return replayStart(first, last, at), last, nil
}

// replayStart clamps a time-based offset into [first, last]. A negative
// offset means no message is newer than the lookback point.
func replayStart(first, last, at int64) int64 {
	switch {
	case at < 0 || at > last:
		return last
	case at < first:
		return first
	default:
		return at
	}
}

func (c *Consumer) waitForWg(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
	case <-done:
		return nil
	}
}

func (c *Consumer) consumeMessages(pr *partitionReader) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := pr.r.FetchMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.log.Warn("fetch message failed",
					xlogger.String("topic", pr.topic),
					xlogger.Int("partition", pr.partition),
					xlogger.Error(err),
				)
			}
			continue
		}
		pr.next = msg.Offset + 1

		// blocking send applies backpressure to the reader
		select {
		case c.msgChan <- &message{topic: pr.topic, km: msg}:
			consumerQueueDepth.WithLabelValues(pr.topic).Set(float64(len(c.msgChan)))
		case <-c.stopChan:
			return
		}
	}
}

func (c *Consumer) messageWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		case msg := <-c.msgChan:
			c.process(msg)
		}
	}
}

// process runs the handler with retries. A payload the handler reports as
// ErrInvalidPayload is not retried.
func (c *Consumer) process(msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in message handler", xlogger.String("topic", msg.topic), xlogger.Any("panic", r))
		}
		consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
	}()

	pl := c.partitionLock(msg.topic, msg.km.Partition)
	pl.Lock()
	defer pl.Unlock()

	var err error
	attempts := 0
	for {
		attempts++
		hctx, hmsg, hdata, berr := c.hook.BeforeHandle(context.Background(), msg.topic, msg.km, msg.km.Value)
		if berr != nil {
			err = berr
			break
		}
		err = handler.Handle(hctx, hdata)
		c.hook.AfterHandle(hctx, msg.topic, hmsg, hdata, err)
		if err == nil || attempts > c.cfg.RetryMax || errors.Is(err, ErrInvalidPayload) {
			break
		}
		c.hook.OnError(hctx, msg.topic, hmsg, hdata, err)
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempts)):
		case <-c.stopChan:
			return
		}
	}

	if err != nil {
		c.hook.OnError(context.Background(), msg.topic, msg.km, msg.km.Value, err)
		c.log.Error("message handling failed",
			xlogger.String("topic", msg.topic),
			xlogger.Int("partition", msg.km.Partition),
			xlogger.Int64("offset", msg.km.Offset),
			xlogger.Int("attempts", attempts),
			xlogger.Error(err),
		)
		c.toDLQ(msg)
	}
}

func (c *Consumer) toDLQ(msg *message) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.km.Key,
		Value:   msg.km.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(msg.topic)}},
	})
	if err != nil {
		c.log.Error("write to dlq failed", xlogger.String("dlq_topic", c.cfg.DLQTopic), xlogger.Error(err))
	}
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.lockMu.Lock()
	defer c.lockMu.Unlock()
	m, ok := c.partLocks[topic]
	if !ok {
		m = make(map[int]*sync.Mutex)
		c.partLocks[topic] = m
	}
	l, ok := m[partition]
	if !ok {
		l = &sync.Mutex{}
		m[partition] = l
	}
	return l
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	// up to 50% jitter
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp - jitter
}

var (
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerOnce          sync.Once
)

func initConsumerMetricsOnce() {
	consumerOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "signalpulse_kafka_consumer_queue_depth", Help: "Number of messages waiting in consumer queue"},
			[]string{"topic"},
		)
		consumerHandleLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "signalpulse_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		)
	})
}
