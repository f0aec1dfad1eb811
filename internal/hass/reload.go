package hass

import (
	"context"
	"fmt"
)

// reloadServices is the fixed set of services refreshed after a deploy.
var reloadServices = [][2]string{
	{"homeassistant", "reload_core_config"},
	{"automation", "reload"},
	{"script", "reload"},
	{"scene", "reload"},
	{"input_boolean", "reload"},
	{"input_number", "reload"},
	{"input_select", "reload"},
	{"input_text", "reload"},
}

// ReloadResult records the outcome of the post-deploy reload pass.
type ReloadResult struct {
	Reloaded []string          `json:"reloaded"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// OK reports whether every service reloaded cleanly.
func (r ReloadResult) OK() bool {
	return len(r.Failed) == 0
}

// ReloadAll refreshes core config, automations, scripts, scenes and input
// helpers. Each service is attempted even when an earlier one fails; the
// failures are collected, never rolled back.
func (c *Client) ReloadAll(ctx context.Context) ReloadResult {
	result := ReloadResult{}
	for _, svc := range reloadServices {
		name := fmt.Sprintf("%s.%s", svc[0], svc[1])
		if err := c.CallService(ctx, svc[0], svc[1], nil); err != nil {
			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}
			result.Failed[name] = err.Error()
			continue
		}
		result.Reloaded = append(result.Reloaded, name)
	}
	return result
}
