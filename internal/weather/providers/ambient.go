package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/ambient-history-cache/internal/weather"
)

// DefaultAmbientBaseURL is the Ambient Weather REST endpoint.
const DefaultAmbientBaseURL = "https://rt.ambientweather.net/v1"

// AmbientProvider implements weather.Provider for the Ambient Weather REST API.
type AmbientProvider struct {
	name           string
	apiKey         string
	applicationKey string
	baseURL        string
	httpCfg        HTTPClientConfig
	circuit        *gobreaker.CircuitBreaker
}

// NewAmbientProvider creates a client. An empty baseURL selects the public API.
func NewAmbientProvider(client *http.Client, baseURL, apiKey, applicationKey string) *AmbientProvider {
	if baseURL == "" {
		baseURL = DefaultAmbientBaseURL
	}
	return &AmbientProvider{
		name:           "ambientweather",
		apiKey:         apiKey,
		applicationKey: applicationKey,
		baseURL:        baseURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      2,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     5 * time.Second,
			},
		},
		circuit: newBreaker("ambientweather"),
	}
}

func (p *AmbientProvider) Name() string {
	return p.name
}

// DeviceData lists records for the device with the given MAC address. The
// API pages backwards from endDate, so q.End and q.Limit go on the wire and
// records older than q.Start are dropped here.
func (p *AmbientProvider) DeviceData(ctx context.Context, deviceID string, q weather.Query) ([]weather.Reading, error) {
	if p.apiKey == "" || p.applicationKey == "" {
		return nil, fmt.Errorf("ambient weather api keys are not configured")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device mac address is required", weather.ErrInvalidArgument)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("apiKey", p.apiKey)
		values.Set("applicationKey", p.applicationKey)
		if !q.End.IsZero() {
			values.Set("endDate", strconv.FormatInt(q.End.UnixMilli(), 10))
		}
		if q.Limit > 0 {
			values.Set("limit", strconv.Itoa(q.Limit))
		}

		u := fmt.Sprintf("%s/devices/%s?%s", p.baseURL, url.PathEscape(deviceID), values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload []weather.Reading
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode device data: %v", weather.ErrRemote, err)
	}

	if q.Start.IsZero() {
		return payload, nil
	}
	out := payload[:0]
	for _, r := range payload {
		// Undated records pass through so the fetcher can report them.
		if r.Date.IsZero() || !r.Date.Before(q.Start) {
			out = append(out, r)
		}
	}
	return out, nil
}
