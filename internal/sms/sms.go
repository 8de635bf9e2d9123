// Package sms отправляет коды подтверждения через SMS-провайдера.
package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"shopbot/internal/config"
	"shopbot/internal/logger"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

//go:generate mockgen -source=sms.go -destination=./mocks/sender_mock.go -package=mocks Sender

// Sender доставляет текст на телефон. false без ошибки - провайдер отказал.
type Sender interface {
	Send(ctx context.Context, phone, text string) (bool, error)
}

// New выбирает провайдера по конфигурации.
func New(cfg config.SMSConfig) (Sender, error) {
	switch cfg.Provider {
	case "", "dev":
		return NewDevSender(), nil
	case "sms_ru":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("для sms_ru требуется SMS_API_KEY")
		}
		return NewSMSRuSender(cfg), nil
	default:
		return nil, fmt.Errorf("неизвестный SMS-провайдер %q", cfg.Provider)
	}
}

// devSender только пишет сообщение в лог.
type devSender struct{}

func NewDevSender() Sender {
	return devSender{}
}

func (devSender) Send(_ context.Context, phone, text string) (bool, error) {
	logger.L.Info("[DEV SMS]", zap.String("phone", phone), zap.String("text", text))
	return true, nil
}

type smsRuSender struct {
	client   *http.Client
	endpoint string
	apiKey   string
	from     string
}

func NewSMSRuSender(cfg config.SMSConfig) Sender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &smsRuSender{
		client:   &http.Client{Timeout: timeout},
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		from:     cfg.Sender,
	}
}

func (s *smsRuSender) Send(ctx context.Context, phone, text string) (bool, error) {
	params := url.Values{}
	params.Set("api_id", s.apiKey)
	params.Set("to", phone)
	params.Set("msg", text)
	params.Set("json", "1")
	if s.from != "" {
		params.Set("from", s.from)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("ошибка создания запроса sms.ru: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("ошибка запроса sms.ru: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("ошибка чтения ответа sms.ru: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("sms.ru ответил статусом %d", resp.StatusCode)
	}

	result := gjson.GetBytes(body, "status")
	if result.String() != "OK" {
		logger.L.Warn("sms.ru отклонил сообщение",
			zap.String("phone", phone),
			zap.String("status_text", gjson.GetBytes(body, "status_text").String()))
		return false, nil
	}
	return true, nil
}
