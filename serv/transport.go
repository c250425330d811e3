package serv

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/WrongProvider/quemVota-sub000/core"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const requestIDHeader = "X-Request-Id"

var (
	errNotArray  = errors.New("expected a json array")
	errNotObject = errors.New("expected a json object")
)

// Transport performs GET requests against the upstream API and turns every
// failure into a *core.Error.
type Transport struct {
	client  *resty.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewTransport returns a Transport for the API described by conf. The
// config must have been validated.
func NewTransport(conf APIConfig, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(conf.BaseURL).
		SetTimeout(conf.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", conf.UserAgent)

	return &Transport{
		client:  client,
		limiter: rate.NewLimiter(limitOf(conf.RateLimit), burstOf(conf.Burst)),
		log:     log,
	}
}

// SetRateLimit changes request pacing. A non-positive limit disables it.
func (t *Transport) SetRateLimit(limit float64, burst int) {
	t.limiter.SetLimit(limitOf(limit))
	t.limiter.SetBurst(burstOf(burst))
}

func limitOf(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func burstOf(burst int) int {
	if burst < 1 {
		return 1
	}
	return burst
}

// Get fetches path with the given query parameters and returns the raw
// JSON body of a 2xx response.
func (t *Transport) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, t.failure(ctx, path, err)
	}

	reqID := xid.New().String()
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		SetHeader(requestIDHeader, reqID).
		Get(path)
	if err != nil {
		e := t.failure(ctx, path, err)
		if e.Kind != core.KindCancelled {
			t.log.Warn("request failed",
				zap.String("method", http.MethodGet),
				zap.String("path", path),
				zap.String("request_id", reqID),
				zap.String("kind", string(e.Kind)))
		}
		return nil, e
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		t.log.Warn("request failed",
			zap.String("method", http.MethodGet),
			zap.String("path", path),
			zap.Int("status", status),
			zap.String("request_id", reqID))
		return nil, core.ErrorForStatus(path, status)
	}

	body := resp.Body()
	if !json.Valid(body) {
		t.log.Warn("invalid response body",
			zap.String("method", http.MethodGet),
			zap.String("path", path),
			zap.Int("status", status),
			zap.String("request_id", reqID))
		return nil, core.NewError(core.KindTransient, path, errors.New("invalid json body"))
	}

	t.log.Debug("request done",
		zap.String("path", path),
		zap.Int("status", status),
		zap.String("request_id", reqID),
		zap.Duration("took", resp.Time()))
	return body, nil
}

func (t *Transport) failure(ctx context.Context, path string, err error) *core.Error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return core.NewError(core.KindCancelled, path, err)
	}
	return core.NewError(core.KindTransient, path, err)
}

// getObject fetches path and decodes a JSON object body into a new T.
func getObject[T any](ctx context.Context, t *Transport, path string, params url.Values) (*T, error) {
	body, err := t.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	if b := bytes.TrimSpace(body); len(b) == 0 || b[0] != '{' {
		return nil, core.NewError(core.KindTransient, path, errNotObject)
	}

	v := new(T)
	if err := json.Unmarshal(body, v); err != nil {
		return nil, core.NewError(core.KindTransient, path, errors.Wrap(err, "decoding response"))
	}
	return v, nil
}

// getList fetches path and decodes a JSON array body. Any other body is a
// transient failure.
func getList[T any](ctx context.Context, t *Transport, path string, params url.Values) ([]T, error) {
	body, err := t.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	if !isArray(body) {
		return nil, core.NewError(core.KindTransient, path, errNotArray)
	}

	items := []T{}
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, core.NewError(core.KindTransient, path, errors.Wrap(err, "decoding response"))
	}
	return items, nil
}

func isArray(body []byte) bool {
	b := bytes.TrimSpace(body)
	return len(b) != 0 && b[0] == '['
}
