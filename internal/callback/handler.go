// Package callback serves the scan-landing callbacks forwarded by the proxy backend.
package callback

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mengyunzhi/wechat-proxy/internal/logger"
	"github.com/mengyunzhi/wechat-proxy/internal/storage"
	"github.com/mengyunzhi/wechat-proxy/pkg/publishers"
	"github.com/mengyunzhi/wechat-proxy/pkg/wechatproxy"
)

// Landing results recorded on the landing counter.
const (
	ResultForwarded = "forwarded"
	ResultDuplicate = "duplicate"
	ResultInvalid   = "invalid"
	ResultFailed    = "failed"
)

// Publisher forwards landing events downstream. *publishers.Fanout satisfies it.
type Publisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Config controls the routes and the reply text.
type Config struct {
	LandingPath string
	Reply       string
}

// Handler answers landing callbacks.
type Handler struct {
	cfg      Config
	store    storage.Store
	pub      Publisher
	log      logger.Logger
	landings *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// NewHandler builds the handler. reg may be nil, in which case the default
// prometheus registry is used.
func NewHandler(cfg Config, store storage.Store, pub Publisher, log logger.Logger, reg *prometheus.Registry) (*Handler, error) {
	if log == nil {
		log = &logger.NopLogger{}
	}
	if store == nil {
		s, err := storage.NewStore("none", "", storage.Options{})
		if err != nil {
			return nil, err
		}
		store = s
	}
	cfg.LandingPath = "/" + strings.TrimLeft(strings.TrimSpace(cfg.LandingPath), "/")

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}

	landings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wechat_landing_events_total",
		Help: "Scan landing callbacks received, by result.",
	}, []string{"result"})
	if err := registerer.Register(landings); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		landings = are.ExistingCollector.(*prometheus.CounterVec)
	}

	return &Handler{
		cfg:      cfg,
		store:    store,
		pub:      pub,
		log:      log,
		landings: landings,
		gatherer: gatherer,
	}, nil
}

// Routes mounts the landing, health and metrics endpoints.
func (h *Handler) Routes(r gin.IRouter) {
	r.POST(h.cfg.LandingPath, h.Landing)
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
}

// Engine returns a gin engine with recovery and the handler routes.
func (h *Handler) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.Routes(r)
	return r
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Landing records a scan landing and forwards it once per appId, openid and scene.
func (h *Handler) Landing(c *gin.Context) {
	var evt wechatproxy.ScanLandingEvent
	if err := c.ShouldBindJSON(&evt); err != nil {
		h.landings.WithLabelValues(ResultInvalid).Inc()
		c.JSON(http.StatusBadRequest, wechatproxy.NewTextResponse("invalid landing payload"))
		return
	}
	evt.Scene = strings.TrimSpace(evt.Scene)
	evt.OpenID = strings.TrimSpace(evt.OpenID)
	if evt.Scene == "" || evt.OpenID == "" {
		h.landings.WithLabelValues(ResultInvalid).Inc()
		c.JSON(http.StatusBadRequest, wechatproxy.NewTextResponse("scene and openid are required"))
		return
	}

	key := storage.LandingKey(evt.AppID, evt.OpenID, evt.Scene)
	fresh, err := h.store.Claim(key)
	if err != nil {
		h.log.ErrorObj("landing de-duplication failed", "landing_store_error", map[string]any{
			"event": evt.String(),
			"error": err.Error(),
		})
		h.landings.WithLabelValues(ResultFailed).Inc()
		c.JSON(http.StatusInternalServerError, wechatproxy.NewTextResponse("landing store unavailable"))
		return
	}
	if !fresh {
		h.log.DebugObj("duplicate landing ignored", "landing_event", evt.String())
		h.landings.WithLabelValues(ResultDuplicate).Inc()
		c.JSON(http.StatusOK, wechatproxy.NewTextResponse(h.cfg.Reply))
		return
	}

	if h.pub != nil {
		delivered, err := h.pub.Publish(c.Request.Context(), publishers.NewEvent(evt))
		if err != nil {
			if rerr := h.store.Release(key); rerr != nil {
				h.log.WarnObj("landing release failed", "landing_store_error", rerr.Error())
			}
			h.log.ErrorObj("landing forward failed", "landing_publish_error", map[string]any{
				"event":     evt.String(),
				"delivered": delivered,
				"error":     err.Error(),
			})
			h.landings.WithLabelValues(ResultFailed).Inc()
			c.JSON(http.StatusBadGateway, wechatproxy.NewTextResponse("landing forward failed"))
			return
		}
	}

	h.log.InfoObj("landing forwarded", "landing_event", evt.String())
	h.landings.WithLabelValues(ResultForwarded).Inc()
	c.JSON(http.StatusOK, wechatproxy.NewTextResponse(h.cfg.Reply))
}
