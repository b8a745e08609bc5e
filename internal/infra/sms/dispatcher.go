package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/obidovbek/ubergo-sub004/internal/core/domain"
	"github.com/obidovbek/ubergo-sub004/internal/core/port"
	"github.com/obidovbek/ubergo-sub004/internal/infra/config"
	"github.com/obidovbek/ubergo-sub004/internal/infra/logger"
)

// ProviderDispatcher routes one-time codes to the HTTP gateway configured
// for each channel. Delivery failures are wrapped in port.DispatchError so
// the transport layer can answer with a gateway problem.
type ProviderDispatcher struct {
	cfg    config.DispatchSettings
	client *http.Client
	logger *zap.Logger
}

// NewProviderDispatcher builds a dispatcher backed by the configured
// provider endpoints.
func NewProviderDispatcher(cfg config.DispatchSettings, log *zap.Logger) *ProviderDispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	return &ProviderDispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: log,
	}
}

func (d *ProviderDispatcher) Send(ctx context.Context, channel domain.OtpChannel, target, code string) error {
	var (
		provider config.ProviderChannel
		name     string
		body     map[string]string
	)

	switch channel {
	case domain.OtpChannelSms:
		provider = d.cfg.Sms
		name = "sms-gateway"
		body = map[string]string{
			"to":     target,
			"from":   provider.Sender,
			"text":   fmt.Sprintf("Your verification code is %s", code),
			"format": "text",
		}
	case domain.OtpChannelCall:
		provider = d.cfg.Call
		name = "voice-gateway"
		body = map[string]string{
			"to":     target,
			"digits": code,
		}
	case domain.OtpChannelPush:
		provider = d.cfg.Push
		name = "push-gateway"
		body = map[string]string{
			"device_token": target,
			"code":         code,
		}
	default:
		return &port.DispatchError{
			Channel:  channel,
			Provider: "none",
			Err:      fmt.Errorf("no provider for channel %q", channel),
		}
	}

	if provider.BaseURL == "" {
		return &port.DispatchError{
			Channel:  channel,
			Provider: name,
			Err:      fmt.Errorf("provider not configured"),
		}
	}

	if err := d.post(ctx, provider, body); err != nil {
		return &port.DispatchError{Channel: channel, Provider: name, Err: err}
	}

	d.logger.Info("otp dispatched",
		zap.String("channel", string(channel)),
		zap.String("target", logger.MaskPhone(target)),
		zap.String("provider", name),
	)

	return nil
}

func (d *ProviderDispatcher) post(ctx context.Context, provider config.ProviderChannel, body map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if provider.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+provider.APIKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, snippet)
	}

	return nil
}

var _ port.ChannelDispatcher = (*ProviderDispatcher)(nil)

// LoggingDispatcher logs codes instead of delivering them. Development only.
type LoggingDispatcher struct {
	logger *zap.Logger
}

func NewLoggingDispatcher(log *zap.Logger) *LoggingDispatcher {
	return &LoggingDispatcher{logger: log}
}

func (d *LoggingDispatcher) Send(_ context.Context, channel domain.OtpChannel, target, code string) error {
	d.logger.Info("otp dispatch (logging mode)",
		zap.String("channel", string(channel)),
		zap.String("target", target),
		zap.String("code", code),
	)
	return nil
}

var _ port.ChannelDispatcher = (*LoggingDispatcher)(nil)
