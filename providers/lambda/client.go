// Package lambda is a client for the Lambda Labs Cloud instance API.
package lambda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/lambdaterm/telemetry"
	"github.com/yairfalse/lambdaterm/types"
)

const (
	DefaultBaseURL = "https://cloud.lambdalabs.com/api/v1"

	// DefaultTerminateTimeout bounds the terminate call
	DefaultTerminateTimeout = 300 * time.Second
	// DefaultStatusTimeout bounds each status poll
	DefaultStatusTimeout = 10 * time.Second

	terminatePath = "/instance-operations/terminate"
	instancePath  = "/instances/"

	// cap on response bodies read into memory
	maxResponseBody = 1 << 20
)

// Config holds client settings
type Config struct {
	BaseURL          string
	TerminateTimeout time.Duration
	StatusTimeout    time.Duration
	HTTPClient       *http.Client
	UserAgent        string
	Logger           *telemetry.Logger
}

// Client talks to the Lambda Labs Cloud API
type Client struct {
	baseURL          string
	terminateTimeout time.Duration
	statusTimeout    time.Duration
	http             *http.Client
	userAgent        string
	logger           *telemetry.Logger
	tracer           trace.Tracer
}

// NewClient creates a client, filling unset fields with defaults
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		terminateTimeout: cfg.TerminateTimeout,
		statusTimeout:    cfg.StatusTimeout,
		http:             cfg.HTTPClient,
		userAgent:        cfg.UserAgent,
		logger:           cfg.Logger,
		tracer:           otel.Tracer("lambdaterm/lambda"),
	}

	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.terminateTimeout <= 0 {
		c.terminateTimeout = DefaultTerminateTimeout
	}
	if c.statusTimeout <= 0 {
		c.statusTimeout = DefaultStatusTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.userAgent == "" {
		c.userAgent = "lambdaterm"
	}
	if c.logger == nil {
		c.logger = telemetry.Nop()
	}

	return c
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return "lambda"
}

// TerminateInstances issues POST /instance-operations/terminate
func (c *Client) TerminateInstances(ctx context.Context, req types.TerminationRequest, cred types.Credential) (_ *types.TerminationResult, err error) {
	const spanName = "lambda.terminate_instances"
	idsAttr := attribute.StringSlice("instance.ids", req.InstanceIDs)

	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(idsAttr))
	defer span.End()
	c.logger.LogSpanStart(ctx, spanName, idsAttr)
	defer func() { c.logger.LogSpanEnd(ctx, spanName, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.terminateTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode terminate request: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, c.baseURL+terminatePath, body, cred)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, fmt.Errorf("terminate instances: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	if status != http.StatusOK {
		perr := decodeError(status, respBody)
		c.logger.LogProviderError(ctx, "terminate", perr)
		span.SetStatus(codes.Error, perr.Code)
		return nil, perr
	}

	var env terminateEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decode terminate response: %w", err)
	}

	result := &types.TerminationResult{
		StatusCode: status,
		Data:       env.Data,
	}
	if len(env.Data) > 0 {
		var data terminateData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("decode terminate data: %w", err)
		}
		result.InstanceIDs = data.InstanceIDs
		if len(result.InstanceIDs) == 0 {
			result.InstanceIDs = data.terminatedIDs()
		}
	}

	return result, nil
}

// GetInstance issues GET /instances/{id}
func (c *Client) GetInstance(ctx context.Context, instanceID string, cred types.Credential) (_ *types.Instance, err error) {
	const spanName = "lambda.get_instance"
	idAttr := attribute.String("instance.id", instanceID)

	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(idAttr))
	defer span.End()
	c.logger.LogSpanStart(ctx, spanName, idAttr)
	defer func() { c.logger.LogSpanEnd(ctx, spanName, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	status, respBody, err := c.do(ctx, http.MethodGet, c.baseURL+instancePath+url.PathEscape(instanceID), nil, cred)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, fmt.Errorf("get instance %s: %w", instanceID, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	if status != http.StatusOK {
		perr := decodeError(status, respBody)
		c.logger.LogProviderError(ctx, "get_instance", perr)
		span.SetStatus(codes.Error, perr.Code)
		return nil, perr
	}

	var env instanceEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("decode instance %s: %w", instanceID, err)
	}

	inst := env.Data.toInstance()
	if inst.ID == "" {
		inst.ID = instanceID
	}
	inst.ObservedAt = time.Now()
	span.SetAttributes(attribute.String("instance.status", string(inst.Status)))
	if !inst.Status.IsKnown() {
		c.logger.WithContext(ctx).Warn().
			Str("instance_id", inst.ID).
			Str("status", string(inst.Status)).
			Msg("provider reported an unknown instance status")
	}

	return &inst, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, cred types.Credential) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", cred.AuthorizationHeader())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	if len(respBody) > maxResponseBody {
		return resp.StatusCode, nil, fmt.Errorf("response body exceeds %d bytes", maxResponseBody)
	}

	c.logger.WithContext(ctx).Debug().
		Str("method", method).
		Str("url", endpoint).
		Int("status_code", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("provider api call")

	return resp.StatusCode, respBody, nil
}
