package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"SalesPulse/pkg/config"
	xhttp "SalesPulse/pkg/http"
)

// ErrNotConfigured is returned when no forecast service URL is set.
var ErrNotConfigured = errors.New("forecast service not configured")

type forecastRequest struct {
	Model   string    `json:"model"`
	Values  []float64 `json:"values"`
	Horizon int       `json:"horizon"`
}

type forecastResponse struct {
	Forecast []float64 `json:"forecast"`
}

// HTTPForecaster asks the external forecasting service for a projected path.
type HTTPForecaster struct {
	baseURL string
	client  *xhttp.Client
}

// NewHTTPForecaster builds the client from the analytics config section.
func NewHTTPForecaster(cfg *config.Config) *HTTPForecaster {
	timeout := cfg.Analytics.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPForecaster{
		baseURL: strings.TrimRight(cfg.Analytics.ForecastServiceURL, "/"),
		client: xhttp.NewClient(
			xhttp.WithTimeout(timeout),
			xhttp.WithRetries(cfg.Analytics.Retries, 100*time.Millisecond),
		),
	}
}

// Forecast returns horizon projected values following history.
func (f *HTTPForecaster) Forecast(ctx context.Context, model string, history []float64, horizon int) ([]float64, error) {
	if f.baseURL == "" {
		return nil, ErrNotConfigured
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("horizon must be positive, got %d", horizon)
	}

	var resp forecastResponse
	err := f.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    f.baseURL + "/forecast",
		Body:   forecastRequest{Model: model, Values: history, Horizon: horizon},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("post /forecast: %w", err)
	}

	if len(resp.Forecast) == 0 {
		return nil, fmt.Errorf("forecast service returned no values")
	}
	for i, v := range resp.Forecast {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("forecast value %d is not finite", i)
		}
	}
	return resp.Forecast, nil
}
