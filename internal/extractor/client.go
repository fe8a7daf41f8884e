// Package extractor calls the receipt amount extraction service.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/punchamoorthee/classfund/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrNoAmount    = errors.New("extraction returned no amount")
	ErrUnavailable = errors.New("extraction service unavailable")
)

var (
	maxAmount = decimal.NewFromInt(math.MaxInt64)
	minAmount = decimal.NewFromInt(math.MinInt64)
)

// Client posts raw receipt images to a single extraction endpoint.
type Client struct {
	url  string
	http *http.Client
}

func New(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

type response struct {
	Amount     json.RawMessage `json:"amount"`
	RawText    string          `json:"raw_text"`
	Confidence *float64        `json:"confidence"`
}

// Extract sends image and decodes the amount the service read from it. The
// full response body is kept on the result.
func (c *Client) Extract(ctx context.Context, image []byte, contentType string) (*domain.Extraction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("build extraction request: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	amount, err := parseAmount(out.Amount)
	if err != nil {
		return nil, err
	}

	return &domain.Extraction{
		Amount:     amount,
		RawText:    out.RawText,
		Confidence: clampConfidence(out.Confidence),
		Raw:        json.RawMessage(body),
	}, nil
}

// parseAmount accepts a JSON number or a numeric string such as "200.000"
// or "200,000 VND". Fractions are truncated. Values outside int64 are
// rejected.
func parseAmount(raw json.RawMessage) (int64, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, ErrNoAmount
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return 0, fmt.Errorf("decode amount: %w", err)
		}
		s = digitsOnly(str)
		if s == "" {
			return 0, ErrNoAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoAmount, s)
	}
	if d.GreaterThan(maxAmount) || d.LessThan(minAmount) {
		return 0, fmt.Errorf("%w: %s out of range", ErrNoAmount, s)
	}
	return d.IntPart(), nil
}

// digitsOnly drops thousands separators and any currency text around the
// number.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '-' && b.Len() == 0 {
			b.WriteRune(r)
		}
	}
	if b.String() == "-" {
		return ""
	}
	return b.String()
}

func clampConfidence(c *float64) int {
	if c == nil {
		return 0
	}
	v := int(*c)
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
