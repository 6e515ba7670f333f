package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/absmach/fedsim/params"
)

const contentTypeCBOR = "application/cbor"

type fitRequest struct {
	Parameters params.Parameters `cbor:"1,keyasint"`
	Config     Config            `cbor:"2,keyasint,omitempty"`
}

type evaluateRequest struct {
	Parameters params.Parameters `cbor:"1,keyasint"`
	Config     Config            `cbor:"2,keyasint,omitempty"`
}

var _ Proxy = (*RemoteProxy)(nil)

// RemoteProxy forwards fit and evaluate calls to a participant serving the
// api.MakeHandler routes. Payloads travel as CBOR; the serialization is a
// detail of this variant, the orchestrator never sees it.
type RemoteProxy struct {
	id      string
	baseURL string
	client  *http.Client
}

func NewRemoteProxy(id, baseURL string, timeout time.Duration) *RemoteProxy {
	return &RemoteProxy{
		id:      id,
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (p *RemoteProxy) ID() string {
	return p.id
}

func (p *RemoteProxy) Fit(ctx context.Context, global params.Parameters, cfg Config) (FitResult, error) {
	var res FitResult
	req := fitRequest{Parameters: global, Config: cfg}
	if err := p.post(ctx, "/fit", req, &res); err != nil {
		return FitResult{}, fmt.Errorf("client %s fit: %w", p.id, err)
	}

	return res, nil
}

func (p *RemoteProxy) Evaluate(ctx context.Context, global params.Parameters, cfg Config) (EvalResult, error) {
	var res EvalResult
	req := evaluateRequest{Parameters: global, Config: cfg}
	if err := p.post(ctx, "/evaluate", req, &res); err != nil {
		return EvalResult{}, fmt.Errorf("client %s evaluate: %w", p.id, err)
	}

	return res, nil
}

func (p *RemoteProxy) post(ctx context.Context, path string, payload, out any) error {
	data, err := cbor.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentTypeCBOR)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("participant returned %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := cbor.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
