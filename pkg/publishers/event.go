package publishers

import (
	"time"

	"github.com/mengyunzhi/wechat-proxy/pkg/wechatproxy"
)

// Event represents a scan landing forwarded downstream.
type Event struct {
	AppID      string    `json:"app_id"`
	Scene      string    `json:"scene"`
	OpenID     string    `json:"openid"`
	ReceivedAt time.Time `json:"received_at"`
}

// NewEvent stamps a landing event with the current time.
func NewEvent(landing wechatproxy.ScanLandingEvent) Event {
	return Event{
		AppID:      landing.AppID,
		Scene:      landing.Scene,
		OpenID:     landing.OpenID,
		ReceivedAt: time.Now().UTC(),
	}
}
