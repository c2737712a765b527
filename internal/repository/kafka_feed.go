package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"SignalPulse/internal/domain/models"
	domrepo "SignalPulse/internal/domain/repository"
	"SignalPulse/pkg/kafka"
	xlogger "SignalPulse/pkg/logger"
)

// KafkaFeedTopics names the change-stream topic of each collection.
type KafkaFeedTopics struct {
	Signals   string
	Portfolio string
	Trades    string
}

// signalMessage is one change of the signals collection.
type signalMessage struct {
	models.SignalEvent
	Deleted bool `json:"deleted,omitempty"`
}

// portfolioMessage is a full portfolio document with its key.
type portfolioMessage struct {
	DocID string `json:"doc_id"`
	models.Portfolio
}

// KafkaFeedSource applies collection change streams from Kafka to a FeedMirror.
type KafkaFeedSource struct {
	mirror *FeedMirror
	topics KafkaFeedTopics
	logger *xlogger.Logger
}

// NewKafkaFeedSource creates the source; register Handlers with a kafka.Consumer.
func NewKafkaFeedSource(mirror *FeedMirror, topics KafkaFeedTopics, logger *xlogger.Logger) *KafkaFeedSource {
	return &KafkaFeedSource{mirror: mirror, topics: topics, logger: logger}
}

// Handlers returns one handler per configured topic.
func (s *KafkaFeedSource) Handlers() []kafka.MessageHandler {
	hs := make([]kafka.MessageHandler, 0, 3)
	if s.topics.Signals != "" {
		hs = append(hs, &feedTopicHandler{topic: s.topics.Signals, collection: domrepo.CollectionSignals, apply: s.applySignal, source: s})
	}
	if s.topics.Portfolio != "" {
		hs = append(hs, &feedTopicHandler{topic: s.topics.Portfolio, collection: domrepo.CollectionPortfolio, apply: s.applyPortfolio, source: s})
	}
	if s.topics.Trades != "" {
		hs = append(hs, &feedTopicHandler{topic: s.topics.Trades, collection: domrepo.CollectionTrades, apply: s.applyTrade, source: s})
	}
	return hs
}

func (s *KafkaFeedSource) applySignal(data []byte) error {
	var msg signalMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: decode signal: %w", kafka.ErrInvalidPayload, err)
	}
	if msg.ID == "" {
		return fmt.Errorf("%w: decode signal: missing id", kafka.ErrInvalidPayload)
	}
	if msg.Deleted {
		s.mirror.RemoveSignal(msg.ID)
		return nil
	}
	s.mirror.UpsertSignal(msg.SignalEvent)
	return nil
}

func (s *KafkaFeedSource) applyPortfolio(data []byte) error {
	var msg portfolioMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: decode portfolio: %w", kafka.ErrInvalidPayload, err)
	}
	if msg.DocID == "" {
		msg.DocID = "main"
	}
	s.mirror.PutPortfolio(msg.DocID, msg.Portfolio)
	return nil
}

func (s *KafkaFeedSource) applyTrade(data []byte) error {
	var t models.TradeRecord
	if err := json.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("%w: decode trade: %w", kafka.ErrInvalidPayload, err)
	}
	s.mirror.AppendTrade(t)
	return nil
}

type feedTopicHandler struct {
	topic      string
	collection string
	apply      func([]byte) error
	source     *KafkaFeedSource
}

func (h *feedTopicHandler) Topic() string { return h.topic }

// Handle applies one change. A malformed change is reported to the collection
// watchers and returned wrapping kafka.ErrInvalidPayload, so the consumer
// routes it to the DLQ without retrying.
func (h *feedTopicHandler) Handle(_ context.Context, data []byte) error {
	if err := h.apply(data); err != nil {
		h.source.mirror.Fail(h.collection, err)
		return err
	}
	return nil
}
