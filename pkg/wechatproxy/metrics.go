package wechatproxy

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels recorded by Instrumented.
const (
	OutcomeOK                 = "ok"
	OutcomeHTTPError          = "http_error"
	OutcomeServiceUnavailable = "service_unavailable"
	OutcomeTransportError     = "transport_error"
	OutcomeError              = "error"
)

// Instrumented decorates a Proxy with request counters and latency summaries.
type Instrumented struct {
	next     Proxy
	requests *prometheus.CounterVec
	duration *prometheus.SummaryVec
}

var _ Proxy = (*Instrumented)(nil)

// NewInstrumented registers the proxy metrics on reg (the default registerer when nil).
// Registering twice on the same registerer reuses the existing collectors.
func NewInstrumented(next Proxy, reg prometheus.Registerer) (*Instrumented, error) {
	if next == nil {
		return nil, errors.New("wechatproxy: proxy is nil")
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wechat_proxy_requests_total",
			Help: "Requests sent to the wechat proxy backend.",
		},
		[]string{"op", "outcome"},
	)
	duration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "wechat_proxy_request_duration_seconds",
			Help:       "Latency of requests sent to the wechat proxy backend.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			MaxAge:     5 * time.Minute,
		},
		[]string{"op", "outcome"},
	)

	var err error
	if requests, err = registerCollector(reg, requests); err != nil {
		return nil, err
	}
	if duration, err = registerCollector(reg, duration); err != nil {
		return nil, err
	}

	return &Instrumented{next: next, requests: requests, duration: duration}, nil
}

func registerCollector[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (i *Instrumented) FetchTemporaryQrCode(ctx context.Context, scene string, opts ...QrCodeOption) (string, error) {
	start := time.Now()
	body, err := i.next.FetchTemporaryQrCode(ctx, scene, opts...)
	i.observe(OpTmpQrCode, start, err)
	return body, err
}

func (i *Instrumented) SendTemplateMessage(ctx context.Context, req TemplateMessageRequest) (string, error) {
	start := time.Now()
	body, err := i.next.SendTemplateMessage(ctx, req)
	i.observe(OpSendTemplateMessage, start, err)
	return body, err
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	outcome := Outcome(err)
	i.requests.WithLabelValues(op, outcome).Inc()
	i.duration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// Outcome classifies err into one of the Outcome* labels.
func Outcome(err error) string {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return OutcomeOK
	case errors.As(err, &httpErr):
		return OutcomeHTTPError
	case errors.Is(err, ErrServiceUnavailable):
		return OutcomeServiceUnavailable
	case errors.Is(err, ErrTransport):
		return OutcomeTransportError
	default:
		return OutcomeError
	}
}
