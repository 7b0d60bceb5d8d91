package sensor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"room-status-backend/config"
)

// GatewayResponse models one page returned by the sensor gateway.
type GatewayResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int       `json:"page"`
		PageSize int       `json:"page_size"`
		Total    int       `json:"total"`
		Items    []Reading `json:"items"`
	} `json:"data"`
}

// Poller periodically pulls readings from the sensor gateway.
type Poller struct {
	cfg     config.PollerConfig
	applier *Applier
	client  *http.Client
	logger  *zap.Logger
}

// NewPoller creates a poller. An invalid proxy URL is logged and ignored.
func NewPoller(cfg config.PollerConfig, applier *Applier, logger *zap.Logger) *Poller {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.Warn("invalid proxy URL, polling without proxy", zap.String("proxy", cfg.HTTPProxy), zap.Error(err))
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Poller{
		cfg:     cfg,
		applier: applier,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		logger: logger,
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if !p.cfg.Enabled {
		p.logger.Info("sensor poller is disabled")
		return
	}
	p.logger.Info("starting sensor poller", zap.Duration("interval", p.cfg.Interval))

	p.PollOnce(ctx)

	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("sensor poller shutting down")
			return
		case <-timer.C:
			p.PollOnce(ctx)
			timer.Reset(p.cfg.Interval)
		}
	}
}

// PollOnce fetches every page and applies the readings. It returns how many
// readings changed a room's status.
func (p *Poller) PollOnce(ctx context.Context) int {
	var readings []Reading
	total := 1
	pageSize := p.cfg.PageSize
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := p.fetchPage(ctx, page)
		if err != nil {
			p.logger.Error("failed to fetch sensor page", zap.Int("page", page), zap.Error(err))
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		readings = append(readings, resp.Data.Items...)
	}

	applied := 0
	for _, r := range readings {
		outcome, err := p.applier.Apply(ctx, r)
		if err != nil {
			p.logger.Error("failed to apply sensor reading", zap.Int64("room_id", r.RoomID), zap.Error(err))
			continue
		}
		if outcome == Applied {
			applied++
		}
	}

	p.logger.Debug("sensor poll finished", zap.Int("readings", len(readings)), zap.Int("applied", applied))
	return applied
}

func (p *Poller) fetchPage(ctx context.Context, page int) (*GatewayResponse, error) {
	jsonBody, err := json.Marshal(map[string]int{"page": page, "page_size": p.cfg.PageSize})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range p.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var gw GatewayResponse
	if err := json.Unmarshal(body, &gw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gateway response: %w", err)
	}
	if gw.Code != 0 {
		return nil, fmt.Errorf("gateway returned non-zero application code: %d", gw.Code)
	}
	return &gw, nil
}
