package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gh-notify-bot/internal/domain"
	"gh-notify-bot/internal/infra/metrics"
)

// BatchHandler принимает пачки уведомлений по HTTP, отсекает повторную
// отправку по идентификатору пачки и ставит принятые пачки в очередь воркера.
type BatchHandler struct {
	cache domain.Cache
	queue domain.BatchQueue
	ttl   time.Duration
	log   zerolog.Logger
}

// NewBatchHandler создаёт обработчик приёма пачек.
func NewBatchHandler(cache domain.Cache, queue domain.BatchQueue, ttl time.Duration, logger zerolog.Logger) *BatchHandler {
	return &BatchHandler{cache: cache, queue: queue, ttl: ttl, log: logger}
}

// Create обрабатывает POST /batches. Пачке без идентификатора назначается
// uuid, повтор по уже принятому идентификатору получает 409.
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var batch domain.NotificationBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if batch.RoomID == "" || len(batch.Events) == 0 {
		http.Error(w, "room_id и events обязательны", http.StatusBadRequest)
		return
	}
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}

	err := h.cache.Once("batch:"+batch.ID, h.ttl, func() error {
		return h.queue.Enqueue(r.Context(), batch)
	})
	switch {
	case errors.Is(err, domain.ErrDuplicate):
		metrics.IncBatchRejected()
		h.log.Warn().Str("batch", batch.ID).Msg("повторная пачка отклонена")
		http.Error(w, "batch already accepted", http.StatusConflict)
		return
	case err != nil:
		h.log.Error().Err(err).Str("batch", batch.ID).Msg("не удалось поставить пачку в очередь")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"batch_id": batch.ID})
}
