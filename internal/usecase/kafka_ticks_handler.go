package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
	pkgkafka "PaperDesk/pkg/kafka"
	"PaperDesk/pkg/util"
)

// KafkaTicksHandler feeds ticks published by other desks into the local price book.
type KafkaTicksHandler struct {
	topic   string
	prices  PriceUpdater
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, prices PriceUpdater, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, prices: prices, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, c, v}
func (h *KafkaTicksHandler) Handle(_ context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		C      float64 `json:"c"`
		V      float64 `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.Symbol == "" || m.C <= 0 {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("invalid tick %q at %v", m.Symbol, m.C)
	}
	ts := util.UnixMaybeMillis(m.T)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ts).Seconds())

	h.prices.Update(models.Tick{
		Symbol:    strings.ToUpper(m.Symbol),
		Price:     m.C,
		Volume:    m.V,
		Timestamp: ts,
	})
	h.metrics.RecordLastPrice(m.Symbol, m.C)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
