package libretranslate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tg-movie-bot/internal/infra/metrics"
)

// Client выполняет запросы к LibreTranslate-совместимому API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient создаёт клиента перевода.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout + time.Second}, baseURL: baseURL, apiKey: apiKey}
}

// TranslateRequest описывает тело запроса /translate.
type TranslateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

// TranslateResponse — ответ /translate.
type TranslateResponse struct {
	TranslatedText   string `json:"translatedText"`
	DetectedLanguage *struct {
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	} `json:"detectedLanguage,omitempty"`
}

type apiErrorResponse struct {
	Error string `json:"error"`
}

// Translate переводит текст на язык target с автоопределением исходного языка.
func (c *Client) Translate(ctx context.Context, text, target string) (TranslateResponse, error) {
	if c.baseURL == "" {
		return TranslateResponse{}, fmt.Errorf("libretranslate: base url is empty")
	}
	body, err := json.Marshal(TranslateRequest{Q: text, Source: "auto", Target: target, Format: "text", APIKey: c.apiKey})
	if err != nil {
		return TranslateResponse{}, fmt.Errorf("libretranslate: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return TranslateResponse{}, fmt.Errorf("libretranslate: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest("libretranslate", "translate", target, start, err)
		return TranslateResponse{}, fmt.Errorf("libretranslate: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("libretranslate", "translate", target, start, err)
		return TranslateResponse{}, fmt.Errorf("libretranslate: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			err = fmt.Errorf("libretranslate: %s", apiErr.Error)
		} else {
			err = fmt.Errorf("libretranslate: unexpected status %d", resp.StatusCode)
		}
		metrics.ObserveNetworkRequest("libretranslate", "translate", target, start, err)
		return TranslateResponse{}, err
	}
	var out TranslateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		metrics.ObserveNetworkRequest("libretranslate", "translate", target, start, err)
		return TranslateResponse{}, fmt.Errorf("libretranslate: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("libretranslate", "translate", target, start, nil)
	return out, nil
}
