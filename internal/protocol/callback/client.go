// Package callback delivers outbound protocol messages to the caller's
// callback URI. Delivery is attempted once; failures are surfaced as
// UpstreamDeliveryError and left to the caller-driven retry cycle.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voltra-energy/voltra/internal/config"
	"github.com/voltra-energy/voltra/internal/metrics"
	protocoldomain "github.com/voltra-energy/voltra/internal/protocol/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Metrics *metrics.Metrics `optional:"true"`
}

type Client struct {
	http    *http.Client
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(p Params) *Client {
	return &Client{
		http:    &http.Client{Timeout: p.Config.Protocol.CallbackTimeout},
		log:     p.Log.Named("protocol.callback"),
		metrics: p.Metrics,
	}
}

// Deliver POSTs env to {callbackURI}/callbacks/{env.Context.Action}. The
// context bounds the attempt together with the client timeout.
func (c *Client) Deliver(ctx context.Context, callbackURI string, env protocoldomain.Envelope) error {
	action := string(env.Context.Action)
	url := fmt.Sprintf("%s/callbacks/%s", strings.TrimRight(callbackURI, "/"), action)

	body, err := json.Marshal(env)
	if err != nil {
		return &protocoldomain.UpstreamDeliveryError{URI: url, Action: action, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &protocoldomain.UpstreamDeliveryError{URI: url, Action: action, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordCallback(action, "error")
		c.log.Warn("callback delivery failed",
			zap.String("url", url),
			zap.Error(err))
		return &protocoldomain.UpstreamDeliveryError{URI: url, Action: action, Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusMultipleChoices {
		c.metrics.RecordCallback(action, "rejected")
		c.log.Warn("callback rejected",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return &protocoldomain.UpstreamDeliveryError{URI: url, Action: action, StatusCode: resp.StatusCode}
	}

	c.metrics.RecordCallback(action, "ok")
	c.log.Debug("callback delivered",
		zap.String("url", url),
		zap.Duration("took", time.Since(start)))
	return nil
}
