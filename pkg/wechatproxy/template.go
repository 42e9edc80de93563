package wechatproxy

import (
	"context"
	"net/url"
)

// SendTemplateMessage posts req to the backend and returns the raw response body.
func (c *Client) SendTemplateMessage(ctx context.Context, req TemplateMessageRequest) (string, error) {
	endpoint, err := c.endpoint(ctx, pathSendTemplateMessage)
	if err != nil {
		return "", err
	}

	query := url.Values{}
	query.Set("instance", c.instanceName)
	query.Set("appId", c.appID)
	fullURL := endpoint + "?" + query.Encode()

	c.log.DebugObj("sending template message", "proxy_request", map[string]any{
		"op":          OpSendTemplateMessage,
		"url":         fullURL,
		"template_id": req.TemplateID,
	})

	resp, err := c.http.Post(ctx, fullURL, nil, req)
	if err != nil {
		return "", c.transportFailure(OpSendTemplateMessage, fullURL, err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		return "", httpFailure(status, resp.Body())
	}
	return string(resp.Body()), nil
}
