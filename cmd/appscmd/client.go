package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	apihttp "github.com/GriffinCanCode/AgentOS/apps/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/planner"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/apps/internal/domain/scheduler"
)

// APIError is a non-2xx response of the daemon
type APIError struct {
	StatusCode int
	Body       apihttp.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Kind != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", e.Body.Error, e.Body.Kind, e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body.Error)
}

// Client talks to the apps daemon REST API
type Client struct {
	http *resty.Client
}

// NewClient creates a client for the daemon at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	return &Client{http: c}
}

// AppList is the body of GET /apps
type AppList struct {
	Apps  []registry.AppRecord `json:"apps"`
	Stats registry.Stats       `json:"stats"`
}

func (c *Client) List(ctx context.Context) (*AppList, error) {
	var out AppList
	return &out, c.do(ctx, http.MethodGet, "/apps", nil, &out)
}

func (c *Client) Get(ctx context.Context, appID string) (*registry.AppRecord, error) {
	var out registry.AppRecord
	return &out, c.do(ctx, http.MethodGet, "/apps/"+appID, nil, &out)
}

func (c *Client) Install(ctx context.Context, updateURL string) (*planner.Result, error) {
	var out planner.Result
	return &out, c.do(ctx, http.MethodPost, "/apps", apihttp.InstallRequest{UpdateURL: updateURL}, &out)
}

func (c *Client) Update(ctx context.Context, appID string) (*planner.Result, error) {
	var out planner.Result
	return &out, c.do(ctx, http.MethodPost, "/apps/"+appID+"/update", nil, &out)
}

func (c *Client) Check(ctx context.Context, appID string) (*planner.UpdateCheck, error) {
	var out planner.UpdateCheck
	return &out, c.do(ctx, http.MethodPost, "/apps/"+appID+"/check", nil, &out)
}

func (c *Client) CheckAll(ctx context.Context) (*scheduler.Summary, error) {
	var out scheduler.Summary
	return &out, c.do(ctx, http.MethodPost, "/updates/check", nil, &out)
}

func (c *Client) Uninstall(ctx context.Context, appID string) error {
	return c.do(ctx, http.MethodDelete, "/apps/"+appID, nil, nil)
}

func (c *Client) SetStatus(ctx context.Context, appID string, status registry.Status) (*registry.AppRecord, error) {
	var out registry.AppRecord
	return &out, c.do(ctx, http.MethodPut, "/apps/"+appID+"/status", apihttp.StatusRequest{Status: status}, &out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var apiErr apihttp.ErrorResponse
	req := c.http.R().SetContext(ctx).SetError(&apiErr)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode())
		}
		return &APIError{StatusCode: resp.StatusCode(), Body: apiErr}
	}
	return nil
}
