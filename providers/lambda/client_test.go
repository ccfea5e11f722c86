package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/lambdaterm/telemetry"
	"github.com/yairfalse/lambdaterm/types"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   []byte
}

func newTestServer(t *testing.T, status int, body string, got *recordedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			got.Method = r.Method
			got.Path = r.URL.Path
			got.Auth = r.Header.Get("Authorization")
			got.Body, _ = io.ReadAll(r.Body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func requireProviderError(t *testing.T, err error) *types.ProviderError {
	t.Helper()
	var perr *types.ProviderError
	require.True(t, errors.As(err, &perr), "expected ProviderError, got %v", err)
	return perr
}

func TestTerminateInstances_Success(t *testing.T) {
	var got recordedRequest
	body := `{"data":{"instance_ids":["i-123","i-456"]}}`
	srv := newTestServer(t, http.StatusOK, body, &got)

	client := NewClient(Config{BaseURL: srv.URL})
	result, err := client.TerminateInstances(context.Background(),
		types.TerminationRequest{InstanceIDs: types.InstanceSet{"i-123", "i-456"}}, "tok")

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/instance-operations/terminate", got.Path)
	assert.Equal(t, "Bearer tok", got.Auth)
	assert.JSONEq(t, `{"instance_ids":["i-123","i-456"]}`, string(got.Body))

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, []string{"i-123", "i-456"}, result.InstanceIDs)
	assert.JSONEq(t, `{"instance_ids":["i-123","i-456"]}`, string(result.Data))
}

func TestTerminateInstances_SuccessKeepsDataUnmodified(t *testing.T) {
	data := `{"instance_ids":["i-1"],"extra":{"nested":[1,2,3]}}`
	srv := newTestServer(t, http.StatusOK, `{"data":`+data+`}`, nil)

	client := NewClient(Config{BaseURL: srv.URL})
	result, err := client.TerminateInstances(context.Background(),
		types.TerminationRequest{InstanceIDs: types.InstanceSet{"i-1"}}, "tok")

	require.NoError(t, err)
	assert.Equal(t, data, string(result.Data))
}

func TestTerminateInstances_TerminatedInstancesShape(t *testing.T) {
	srv := newTestServer(t, http.StatusOK,
		`{"data":{"terminated_instances":[{"id":"i-9","status":"terminating"}]}}`, nil)

	client := NewClient(Config{BaseURL: srv.URL})
	result, err := client.TerminateInstances(context.Background(),
		types.TerminationRequest{InstanceIDs: types.InstanceSet{"i-9"}}, "tok")

	require.NoError(t, err)
	id, ok := result.FirstInstanceID()
	assert.True(t, ok)
	assert.Equal(t, "i-9", id)
}

func TestTerminateInstances_EmptySegmentsPassThrough(t *testing.T) {
	var got recordedRequest
	srv := newTestServer(t, http.StatusOK, `{"data":{"instance_ids":[]}}`, &got)

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.TerminateInstances(context.Background(),
		types.TerminationRequest{InstanceIDs: types.InstanceSet{"i-1", ""}}, "tok")

	require.NoError(t, err)
	assert.JSONEq(t, `{"instance_ids":["i-1",""]}`, string(got.Body))
}

func TestTerminateInstances_Failure(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		code       string
		message    string
		suggestion string
	}{
		{
			name:       "message only",
			status:     http.StatusNotFound,
			body:       `{"error":{"message":"not found"}}`,
			code:       "global/unknown",
			message:    "not found",
			suggestion: "No suggestion available",
		},
		{
			name:       "all fields",
			status:     http.StatusBadRequest,
			body:       `{"error":{"code":"global/invalid-parameters","message":"bad id","suggestion":"check ids"}}`,
			code:       "global/invalid-parameters",
			message:    "bad id",
			suggestion: "check ids",
		},
		{
			name:       "no error object",
			status:     http.StatusInternalServerError,
			body:       `{}`,
			code:       "global/unknown",
			message:    "An unknown error occurred",
			suggestion: "No suggestion available",
		},
		{
			name:       "non-json body",
			status:     http.StatusBadGateway,
			body:       "upstream unavailable\n",
			code:       "global/unknown",
			message:    "upstream unavailable",
			suggestion: "No suggestion available",
		},
		{
			name:       "empty body",
			status:     http.StatusServiceUnavailable,
			body:       "",
			code:       "global/unknown",
			message:    "Service Unavailable",
			suggestion: "No suggestion available",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.status, tt.body, nil)
			client := NewClient(Config{BaseURL: srv.URL})

			result, err := client.TerminateInstances(context.Background(),
				types.TerminationRequest{InstanceIDs: types.InstanceSet{"i-1"}}, "tok")

			assert.Nil(t, result)
			perr := requireProviderError(t, err)
			assert.Equal(t, tt.status, perr.StatusCode)
			assert.Equal(t, tt.code, perr.Code)
			assert.Equal(t, tt.message, perr.Message)
			assert.Equal(t, tt.suggestion, perr.Suggestion)
		})
	}
}

func TestTerminateInstances_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, TerminateTimeout: 50 * time.Millisecond})
	_, err := client.TerminateInstances(context.Background(),
		types.TerminationRequest{InstanceIDs: types.InstanceSet{"i-1"}}, "tok")

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	var perr *types.ProviderError
	assert.False(t, errors.As(err, &perr))
}

func TestGetInstance(t *testing.T) {
	var got recordedRequest
	body, _ := json.Marshal(map[string]any{
		"data": map[string]any{
			"id":            "i-123",
			"name":          "trainer",
			"status":        "terminating",
			"ip":            "10.0.0.1",
			"region":        map[string]string{"name": "us-west-1"},
			"instance_type": map[string]string{"name": "gpu_1x_a10"},
		},
	})
	srv := newTestServer(t, http.StatusOK, string(body), &got)

	client := NewClient(Config{BaseURL: srv.URL + "/"})
	inst, err := client.GetInstance(context.Background(), "i-123", "tok")

	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/instances/i-123", got.Path)
	assert.Equal(t, "Bearer tok", got.Auth)

	assert.Equal(t, "i-123", inst.ID)
	assert.Equal(t, "trainer", inst.Name)
	assert.Equal(t, types.StatusTerminating, inst.Status)
	assert.Equal(t, "10.0.0.1", inst.IP)
	assert.Equal(t, "us-west-1", inst.Region)
	assert.Equal(t, "gpu_1x_a10", inst.InstanceType)
	assert.False(t, inst.ObservedAt.IsZero())
}

func TestGetInstance_NotFound(t *testing.T) {
	srv := newTestServer(t, http.StatusNotFound,
		`{"error":{"code":"global/object-does-not-exist","message":"Instance not found"}}`, nil)

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.GetInstance(context.Background(), "i-404", "tok")

	perr := requireProviderError(t, err)
	assert.Equal(t, http.StatusNotFound, perr.StatusCode)
	assert.Equal(t, "global/object-does-not-exist", perr.Code)
}

func TestNewClient_Defaults(t *testing.T) {
	client := NewClient(Config{})

	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, DefaultTerminateTimeout, client.terminateTimeout)
	assert.Equal(t, DefaultStatusTimeout, client.statusTimeout)
	assert.Equal(t, "lambda", client.Name())
}

func newDebugLogger(buf *strings.Builder) *telemetry.Logger {
	return &telemetry.Logger{Logger: zerolog.New(buf).Level(zerolog.DebugLevel)}
}

func TestTerminateInstances_LogsSpanLifecycle(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"data":{"instance_ids":["i-1"]}}`, nil)

	var logs strings.Builder
	client := NewClient(Config{BaseURL: srv.URL, Logger: newDebugLogger(&logs)})
	_, err := client.TerminateInstances(context.Background(),
		types.TerminationRequest{InstanceIDs: types.InstanceSet{"i-1"}}, "tok")

	require.NoError(t, err)
	assert.Contains(t, logs.String(), `"span_name":"lambda.terminate_instances"`)
	assert.Contains(t, logs.String(), `"instance.ids":["i-1"]`)
	assert.Contains(t, logs.String(), "span started")
	assert.Contains(t, logs.String(), "span completed")
}

func TestGetInstance_LogsSpanFailure(t *testing.T) {
	srv := newTestServer(t, http.StatusNotFound, `{"error":{"message":"gone"}}`, nil)

	var logs strings.Builder
	client := NewClient(Config{BaseURL: srv.URL, Logger: newDebugLogger(&logs)})
	_, err := client.GetInstance(context.Background(), "i-404", "tok")

	require.Error(t, err)
	assert.Contains(t, logs.String(), `"span_name":"lambda.get_instance"`)
	assert.Contains(t, logs.String(), "span failed")
}

func TestGetInstance_UnknownStatusWarns(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"data":{"id":"i-1","status":"hibernating"}}`, nil)

	var logs strings.Builder
	client := NewClient(Config{BaseURL: srv.URL, Logger: newDebugLogger(&logs)})
	inst, err := client.GetInstance(context.Background(), "i-1", "tok")

	require.NoError(t, err)
	assert.Equal(t, types.InstanceStatus("hibernating"), inst.Status)
	assert.Contains(t, logs.String(), "unknown instance status")
}

func TestTerminateInstances_OversizedBody(t *testing.T) {
	huge := `{"data":{"instance_ids":["` + strings.Repeat("x", maxResponseBody) + `"]}}`
	srv := newTestServer(t, http.StatusOK, huge, nil)

	client := NewClient(Config{BaseURL: srv.URL})
	_, err := client.TerminateInstances(context.Background(),
		types.TerminationRequest{InstanceIDs: types.InstanceSet{"i-1"}}, "tok")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
	var perr *types.ProviderError
	assert.False(t, errors.As(err, &perr))
}

func TestTerminateInstances_BodyAtLimit(t *testing.T) {
	prefix := `{"data":{"instance_ids":["i-1"]},"pad":"`
	suffix := `"}`
	body := prefix + strings.Repeat("x", maxResponseBody-len(prefix)-len(suffix)) + suffix
	require.Len(t, body, maxResponseBody)
	srv := newTestServer(t, http.StatusOK, body, nil)

	client := NewClient(Config{BaseURL: srv.URL})
	result, err := client.TerminateInstances(context.Background(),
		types.TerminationRequest{InstanceIDs: types.InstanceSet{"i-1"}}, "tok")

	require.NoError(t, err)
	assert.Equal(t, []string{"i-1"}, result.InstanceIDs)
}
