package wechatproxy

import "fmt"

// TemplateMessageRequest is the payload of a template message push.
// See https://developers.weixin.qq.com/doc/offiaccount/Message_Management/Template_Message_Interface.html
type TemplateMessageRequest struct {
	// OpenID identifies the recipient.
	OpenID     string `json:"openid" yaml:"openid"`
	TemplateID string `json:"templateId" yaml:"templateId"`
	// URL is ignored for overseas accounts.
	URL         string       `json:"url,omitempty" yaml:"url,omitempty"`
	MiniProgram *MiniProgram `json:"miniProgram,omitempty" yaml:"miniProgram,omitempty"`
	// UUID de-duplicates sends: one message per openid+uuid within ten minutes.
	UUID string               `json:"uuid,omitempty" yaml:"uuid,omitempty"`
	Data map[string]DataEntry `json:"data" yaml:"data"`
}

// MiniProgram is the optional mini-program jump target of a template message.
type MiniProgram struct {
	AppID string `json:"appId" yaml:"appId"`
	// PagePath may carry a query, e.g. index?foo=bar.
	PagePath string `json:"pagePath" yaml:"pagePath"`
}

// DataEntry is the value of one template placeholder.
type DataEntry struct {
	Value string `json:"value" yaml:"value"`
}

// SetData sets the value of placeholder key, allocating Data when needed.
func (r *TemplateMessageRequest) SetData(key, value string) {
	if r.Data == nil {
		r.Data = make(map[string]DataEntry)
	}
	r.Data[key] = DataEntry{Value: value}
}

// ScanLandingEvent is what the backend forwards to the callback URL after a user scans a qr code.
type ScanLandingEvent struct {
	Scene  string `json:"scene"`
	OpenID string `json:"openid"`
	AppID  string `json:"appId"`
}

func (e ScanLandingEvent) String() string {
	return fmt.Sprintf("ScanLandingEvent{openid=%q, scene=%q, appId=%q}", e.OpenID, e.Scene, e.AppID)
}

// TextResponse is the reply a landing endpoint sends back to the backend.
type TextResponse struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// NewTextResponse builds a "text" reply.
func NewTextResponse(content string) TextResponse {
	return TextResponse{Type: "text", Content: content}
}
