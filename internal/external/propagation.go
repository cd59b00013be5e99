package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"rfcoverage/internal/types"
)

// maxResponseBytes bounds the size of a response document read into memory.
const maxResponseBytes = 32 << 20

// Endpoint paths.
const (
	bestServerPath = "/API/network/index.php"
	pathPath       = "/path"
	areaPath       = "/area"
)

// PropagationClientConfig holds the configuration for creating a
// PropagationClient.
type PropagationClientConfig struct {
	// ServerURL hosts the best-server endpoint.
	ServerURL string
	// APIURL hosts the JSON /path and /area endpoints.
	APIURL string
	UID    string
	APIKey types.SecretString
	Logger *slog.Logger
}

// PropagationClient calls the remote propagation service through BaseClient.
type PropagationClient struct {
	base      *BaseClient
	serverURL string
	apiURL    string
	uid       string
	apiKey    types.SecretString
	logger    *slog.Logger
}

// NewPropagationClient creates a PropagationClient on top of base.
func NewPropagationClient(base *BaseClient, cfg PropagationClientConfig) *PropagationClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PropagationClient{
		base:      base,
		serverURL: strings.TrimSuffix(cfg.ServerURL, "/"),
		apiURL:    strings.TrimSuffix(cfg.APIURL, "/"),
		uid:       cfg.UID,
		apiKey:    cfg.APIKey,
		logger:    logger,
	}
}

// BestServer submits one best-server query and returns the raw response
// body. Any response that gets past BaseClient is returned verbatim,
// including error documents and 4xx bodies: interpreting it is the selector's
// job, and the caller caches it as-is.
func (c *PropagationClient) BestServer(ctx context.Context, r BestServerRequest) ([]byte, error) {
	if err := getValidator().Struct(r); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidParams,
			fmt.Sprintf("invalid best-server request for %q", r.PointID), err)
	}

	body := r.Form(c.uid, c.apiKey.Unmask()).Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+bestServerPath, strings.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create best-server request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"failed to read best-server response", err)
	}

	if resp.StatusCode >= 400 {
		c.logger.WarnContext(ctx, "best-server request rejected",
			"point_id", r.PointID,
			"status_code", resp.StatusCode,
		)
	}
	return doc, nil
}

// PathResult is the signal observed at the receiver of a path profile.
type PathResult struct {
	SignalDBm float64
	ChartURL  string
}

// AreaResult summarises an area coverage calculation.
type AreaResult struct {
	Area     float64 `json:"area"`
	Coverage float64 `json:"coverage"`
	KMZ      string  `json:"kmz,omitempty"`
	Elapsed  float64 `json:"elapsed,omitempty"`
}

type pathResponse struct {
	ChartImage   string `json:"Chart image"`
	Transmitters []struct {
		SignalDBm *float64 `json:"Signal power at receiver dBm"`
	} `json:"Transmitters"`
}

// PathProfile computes a point-to-point path. A response document carrying an
// "error" field yields an upstream_propagation_error whose Details hold the
// service message under "error".
func (c *PropagationClient) PathProfile(ctx context.Context, r *PropagationRequest) (*PathResult, error) {
	doc, err := c.postJSON(ctx, pathPath, r)
	if err != nil {
		return nil, err
	}

	var pr pathResponse
	if err := json.Unmarshal(doc, &pr); err != nil {
		return nil, types.NewAppError(types.ErrCodeParseMalformedJSON,
			"failed to decode path response", err)
	}
	if len(pr.Transmitters) == 0 || pr.Transmitters[0].SignalDBm == nil {
		return nil, types.NewAppError(types.ErrCodeParseMissingKey,
			"path response has no received signal power", nil)
	}
	return &PathResult{
		SignalDBm: *pr.Transmitters[0].SignalDBm,
		ChartURL:  pr.ChartImage,
	}, nil
}

// Area computes the coverage of a site, which also registers the site in its
// network on the service.
func (c *PropagationClient) Area(ctx context.Context, r *PropagationRequest) (*AreaResult, error) {
	doc, err := c.postJSON(ctx, areaPath, r)
	if err != nil {
		return nil, err
	}

	var ar AreaResult
	if err := json.Unmarshal(doc, &ar); err != nil {
		return nil, types.NewAppError(types.ErrCodeParseMalformedJSON,
			"failed to decode area response", err)
	}
	return &ar, nil
}

// postJSON sends r to the API endpoint and returns the response document once
// it is known not to be an error document.
func (c *PropagationClient) postJSON(ctx context.Context, path string, r *PropagationRequest) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(r)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to serialize propagation request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create propagation request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("key", c.uid+"-"+c.apiKey.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		// A server error that still carries an error document is reported
		// as the service's own error.
		if doc, ok := FailureBody(err); ok {
			if msg, ok := ErrorMessage(doc); ok {
				return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamPropagation,
					fmt.Sprintf("propagation service error for site %q: %s", r.Site, msg), err,
					map[string]any{"error": msg})
			}
		}
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"failed to read propagation response", err)
	}

	if msg, ok := ErrorMessage(doc); ok {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeUpstreamPropagation,
			fmt.Sprintf("propagation service error for site %q: %s", r.Site, msg), nil,
			map[string]any{"error": msg, "status_code": resp.StatusCode})
	}
	if resp.StatusCode >= 400 {
		return nil, types.NewAppError(types.ErrCodeUpstreamRejected,
			fmt.Sprintf("propagation service rejected site %q (%d)", r.Site, resp.StatusCode), nil)
	}
	return doc, nil
}

// ErrorMessage extracts the "error" field of an error document. ok is false
// when doc is not a JSON object or has no error field.
func ErrorMessage(doc []byte) (msg string, ok bool) {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(doc, &env); err != nil || len(env.Error) == 0 || string(env.Error) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(env.Error, &s); err == nil {
		return s, true
	}
	return string(env.Error), true
}
