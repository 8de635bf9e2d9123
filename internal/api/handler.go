package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"shopbot/internal/apperr"
	"shopbot/internal/bot"
	"shopbot/internal/logger"
	"shopbot/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const maxEventBytes = 64 << 10

// EventsResponse - ответы диспетчера на одно событие.
type EventsResponse struct {
	Replies []bot.Reply `json:"replies"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// EventHandler принимает события участников по HTTP.
type EventHandler struct {
	bot bot.Handler
}

func NewEventHandler(h bot.Handler) *EventHandler {
	return &EventHandler{bot: h}
}

// Post разбирает событие из тела запроса и возвращает ответы диспетчера.
func (h *EventHandler) Post(w http.ResponseWriter, r *http.Request) {
	handlerName := "PostEvent"
	timer := prometheus.NewTimer(metrics.HttpRequestDuration.WithLabelValues(handlerName))
	defer timer.ObserveDuration()

	var ev bot.Event
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		respondWithError(w, http.StatusBadRequest, "некорректный JSON события", handlerName)
		return
	}

	replies, err := h.bot.Handle(r.Context(), ev)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			respondWithError(w, http.StatusBadRequest, err.Error(), handlerName)
			return
		}
		logger.L.Error("Ошибка обработки события",
			zap.Int64("principal_id", ev.PrincipalID),
			zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "внутренняя ошибка", handlerName)
		return
	}
	if replies == nil {
		replies = []bot.Reply{}
	}

	metrics.HttpRequestsTotal.WithLabelValues(handlerName, "200").Inc()
	respondWithJSON(w, http.StatusOK, EventsResponse{Replies: replies})
}

// HealthHandler отвечает на проверки живости.
type HealthHandler struct {
	pinger Pinger
}

func NewHealthHandler(p Pinger) *HealthHandler {
	return &HealthHandler{pinger: p}
}

func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	handlerName := "Healthz"
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			logger.L.Warn("Хранилище недоступно", zap.Error(err))
			metrics.DBErrors.WithLabelValues("ping").Inc()
			respondWithError(w, http.StatusServiceUnavailable, "хранилище недоступно", handlerName)
			return
		}
	}
	metrics.HttpRequestsTotal.WithLabelValues(handlerName, "200").Inc()
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondWithJSON вспомогательная функция для отправки JSON-ответов.
func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.L.Error("Не удалось сериализовать ответ", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string, handlerName string) {
	metrics.HttpRequestsTotal.WithLabelValues(handlerName, strconv.Itoa(code)).Inc()
	respondWithJSON(w, code, errorResponse{Error: message})
}
