package trends

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultBaseURL   = "https://trends.google.com/trends/api"
	timeseriesWidget = "TIMESERIES"
)

var _ Provider = (*Client)(nil)

type ClientConfig struct {
	BaseURL   string
	Language  string
	TZOffset  int
	NIDCookie string
	UserAgent string
}

// Client talks to the Google Trends explore and multiline widget endpoints.
type Client struct {
	httpClient *http.Client
	config     ClientConfig
}

func NewClient(httpClient *http.Client, config ClientConfig) *Client {
	config.BaseURL = cmp.Or(config.BaseURL, DefaultBaseURL)
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if config.NIDCookie == "" {
		slog.Warn("NID cookie not configured, trends results may be incomplete")
	}
	return &Client{httpClient: httpClient, config: config}
}

type exploreRequest struct {
	ComparisonItem []comparisonItem `json:"comparisonItem"`
	Category       int              `json:"category"`
	Property       string           `json:"property"`
}

type comparisonItem struct {
	Keyword string `json:"keyword"`
	Time    string `json:"time"`
	Geo     string `json:"geo"`
}

type exploreResponse struct {
	Widgets []widget `json:"widgets"`
}

type widget struct {
	ID      string          `json:"id"`
	Token   string          `json:"token"`
	Request json.RawMessage `json:"request"`
}

type multilineResponse struct {
	Default *struct {
		TimelineData []timelinePoint `json:"timelineData"`
	} `json:"default"`
}

type timelinePoint struct {
	Time      string `json:"time"`
	Value     []int  `json:"value"`
	HasData   []bool `json:"hasData"`
	IsPartial bool   `json:"isPartial"`
}

func (c *Client) InterestOverTime(ctx context.Context, keyword string, query Query) (Series, error) {
	w, err := c.explore(ctx, keyword, query)
	if err != nil {
		return nil, err
	}
	return c.multiline(ctx, w)
}

func (c *Client) explore(ctx context.Context, keyword string, query Query) (*widget, error) {
	payload, err := json.Marshal(exploreRequest{
		ComparisonItem: []comparisonItem{{Keyword: keyword, Time: query.Timeframe, Geo: query.Geo}},
		Category:       query.Category,
		Property:       query.Property,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode explore request: %w", err)
	}

	params := c.baseParams()
	params.Set("req", string(payload))

	body, err := c.do(ctx, http.MethodPost, c.config.BaseURL+"/explore", params)
	if err != nil {
		return nil, fmt.Errorf("explore request failed: %w", err)
	}

	var resp exploreResponse
	if err := decodeGuarded(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode explore response: %w", err)
	}

	for i := range resp.Widgets {
		if resp.Widgets[i].ID == timeseriesWidget {
			if resp.Widgets[i].Token == "" || len(resp.Widgets[i].Request) == 0 {
				return nil, fmt.Errorf("%w: timeseries widget without token", ErrSchema)
			}
			return &resp.Widgets[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no timeseries widget in explore response", ErrSchema)
}

func (c *Client) multiline(ctx context.Context, w *widget) (Series, error) {
	params := c.baseParams()
	params.Set("req", string(w.Request))
	params.Set("token", w.Token)

	body, err := c.do(ctx, http.MethodGet, c.config.BaseURL+"/widgetdata/multiline", params)
	if err != nil {
		return nil, fmt.Errorf("multiline request failed: %w", err)
	}

	var resp multilineResponse
	if err := decodeGuarded(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode multiline response: %w", err)
	}
	if resp.Default == nil {
		return nil, fmt.Errorf("%w: missing default block", ErrSchema)
	}

	series := make(Series, 0, len(resp.Default.TimelineData))
	for _, p := range resp.Default.TimelineData {
		point, err := p.toTimePoint()
		if err != nil {
			return nil, err
		}
		series = append(series, point)
	}
	return series, nil
}

func (p timelinePoint) toTimePoint() (TimePoint, error) {
	ts, err := strconv.ParseInt(p.Time, 10, 64)
	if err != nil {
		return TimePoint{}, fmt.Errorf("%w: invalid time %q", ErrSchema, p.Time)
	}
	if len(p.Value) == 0 {
		return TimePoint{}, fmt.Errorf("%w: point %s has no value", ErrSchema, p.Time)
	}
	if p.Value[0] < 0 {
		return TimePoint{}, fmt.Errorf("%w: negative value %d", ErrSchema, p.Value[0])
	}

	hasData := true
	if len(p.HasData) > 0 {
		hasData = p.HasData[0]
	}

	return TimePoint{
		Time:    time.Unix(ts, 0).UTC(),
		Value:   p.Value[0],
		HasData: hasData,
		Partial: p.IsPartial,
	}, nil
}

func (c *Client) baseParams() url.Values {
	params := url.Values{}
	params.Set("hl", c.config.Language)
	params.Set("tz", strconv.Itoa(c.config.TZOffset))
	return params
}

func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.NIDCookie != "" {
		req.Header.Set("Cookie", "NID="+c.config.NIDCookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: HTTP %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

// decodeGuarded strips the anti-JSON-hijacking prefix (")]}'") the trends
// API puts in front of every payload.
func decodeGuarded(body []byte, v any) error {
	start := bytes.IndexByte(body, '{')
	if start < 0 {
		return fmt.Errorf("%w: no JSON object in body", ErrSchema)
	}
	if err := json.Unmarshal(body[start:], v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
