package keywords

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"
)

// ErrNoKeywords is returned when a source yields nothing after normalization.
var ErrNoKeywords = errors.New("no keywords found")

// Source yields the raw keyword list of a run in column order.
type Source interface {
	Keywords(ctx context.Context) ([]string, error)
}

// ColumnReader reads the first column of a sheet.
type ColumnReader interface {
	ReadColumn(ctx context.Context, sheet string) ([]string, error)
}

var (
	_ Source = (*SheetSource)(nil)
	_ Source = (*StaticSource)(nil)
	_ Source = (*FeedSource)(nil)
)

type SheetSource struct {
	reader ColumnReader
	sheet  string
}

func NewSheetSource(reader ColumnReader, sheet string) *SheetSource {
	return &SheetSource{reader: reader, sheet: sheet}
}

func (s *SheetSource) Keywords(ctx context.Context) ([]string, error) {
	values, err := s.reader.ReadColumn(ctx, s.sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read keywords from sheet '%s': %w", s.sheet, err)
	}
	return values, nil
}

type StaticSource struct {
	list []string
}

func NewStaticSource(list []string) *StaticSource {
	return &StaticSource{list: list}
}

func (s *StaticSource) Keywords(ctx context.Context) ([]string, error) {
	return append([]string(nil), s.list...), nil
}

// FeedSource takes keywords from the item titles of an RSS/Atom feed, such
// as the Google Trends trending-searches feed.
type FeedSource struct {
	httpClient *http.Client
	parser     *gofeed.Parser
	url        string
	userAgent  string
	maxItems   int
}

func NewFeedSource(httpClient *http.Client, url, userAgent string, maxItems int) *FeedSource {
	return &FeedSource{
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		url:        url,
		userAgent:  userAgent,
		maxItems:   maxItems,
	}
}

func (s *FeedSource) Keywords(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch keyword feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	feed, err := s.parser.ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse keyword feed: %w", err)
	}

	titles := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if s.maxItems > 0 && len(titles) >= s.maxItems {
			break
		}
		titles = append(titles, item.Title)
	}

	slog.Debug("Keyword feed parsed", "url", s.url, "items", len(feed.Items), "used", len(titles))
	return titles, nil
}

// Normalize trims, NFC-normalizes and de-duplicates keywords, dropping empty
// cells. The first occurrence of a keyword keeps its position.
func Normalize(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))

	for _, kw := range raw {
		kw = norm.NFC.String(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if seen[kw] {
			slog.Debug("Duplicate keyword skipped", "keyword", kw)
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}

	return out
}

// Load reads a source and normalizes it. An empty result is ErrNoKeywords.
func Load(ctx context.Context, src Source) ([]string, error) {
	raw, err := src.Keywords(ctx)
	if err != nil {
		return nil, err
	}

	kws := Normalize(raw)
	if len(kws) == 0 {
		return nil, ErrNoKeywords
	}
	return kws, nil
}
