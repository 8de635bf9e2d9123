package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal - Счетчик HTTP-запросов
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Количество HTTP запросов",
		},
		[]string{"handler", "status"}, // Метки: хэндлер и http-статус
	)

	// HttpRequestDuration - Гистограмма длительности HTTP-запросов
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Длительность HTTP запросов",
		},
		[]string{"handler"},
	)

	// CacheHits - Счетчик попаданий в кэш каталога
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Количество попаданий в кэш каталога",
		},
	)

	// CacheMisses - Счетчик промахов кэша каталога
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Количество промахов кэша каталога",
		},
	)

	// CacheSize - Датчик (Gauge) текущего размера кэша
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_cache_size_items",
			Help: "Текущий размер кэша в элементах",
		},
	)

	// CacheEvictions - Счетчик вытеснений из кэша (LRU)
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_cache_evictions_total",
			Help: "Количество вытесненных из кэша элементов",
		},
	)

	// CacheReloads - Счетчик полных перезагрузок кэша
	CacheReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_reloads_total",
			Help: "Количество перезагрузок кэша каталога",
		},
		[]string{"status"},
	)

	// KafkaMessagesProcessed - Счетчик обработанных Kafka-сообщений
	KafkaMessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_processed_total",
			Help: "Количество обработанных сообщений Kafka",
		},
		[]string{"status"}, // success, dlq_validation, dlq_handler_error, dlq_failed_write, reply_failed
	)

	// DBErrors - Счетчик ошибок базы данных
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Количество ошибок при работе с БД",
		},
		[]string{"operation"},
	)

	// DialogEvents - входящие события по типу и результату
	DialogEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dialog_events_total",
			Help: "Количество обработанных событий диалога",
		},
		[]string{"kind", "result"}, // result: ok, validation, forbidden, not_found, conflict, expired, transient
	)

	// OTPResults - результаты проверки одноразовых кодов
	OTPResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_results_total",
			Help: "Результаты выдачи и проверки OTP",
		},
		[]string{"result"}, // issued, verified, mismatch, expired, no_pending, sms_failed
	)

	// OrdersCheckedOut - оформленные заказы по способу доставки
	OrdersCheckedOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_checked_out_total",
			Help: "Количество оформленных заказов",
		},
		[]string{"delivery"},
	)
)
