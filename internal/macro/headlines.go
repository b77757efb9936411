package macro

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"SectorPulse/internal/logging"
)

// HeadlineSource supplies news headlines for the sentiment prompt. A zero
// asOf asks for the latest headlines.
type HeadlineSource interface {
	Headlines(ctx context.Context, asOf time.Time) ([]string, error)
}

// Defaults for FeedSource.
const (
	DefaultPerFeed       = 5
	DefaultHistoricalMax = 20
)

// historicalSearchURL is a news search feed that accepts after:/before: date
// operators in the query.
const historicalSearchURL = "https://news.google.com/rss/search"

// FeedSource reads headlines from RSS/Atom feeds.
type FeedSource struct {
	Feeds   []string
	PerFeed int
	// SearchURL serves historical queries; empty uses the public news search.
	SearchURL string

	parser *gofeed.Parser
	logger *zap.Logger
}

// NewFeedSource creates a source over feeds.
func NewFeedSource(feeds []string, logger *zap.Logger) *FeedSource {
	return &FeedSource{
		Feeds:     feeds,
		PerFeed:   DefaultPerFeed,
		SearchURL: historicalSearchURL,
		parser:    gofeed.NewParser(),
		logger:    logging.OrNop(logger),
	}
}

// Headlines returns the top entries of every feed, or for a past asOf date the
// results of a dated news search. Feeds that fail are skipped; an error is
// returned only when nothing could be read.
func (s *FeedSource) Headlines(ctx context.Context, asOf time.Time) ([]string, error) {
	if !asOf.IsZero() && asOf.Before(time.Now().Truncate(24*time.Hour)) {
		return s.historical(ctx, asOf)
	}

	seen := make(map[string]struct{})
	var out []string
	var lastErr error
	for _, feedURL := range s.Feeds {
		feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			s.logger.Warn("rss fetch failed", zap.String("feed", feedURL), zap.Error(err))
			lastErr = err
			continue
		}
		out = appendTitles(out, seen, feed.Items, s.PerFeed, false)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("read feeds: %w", lastErr)
	}
	return out, nil
}

func (s *FeedSource) historical(ctx context.Context, asOf time.Time) ([]string, error) {
	q := fmt.Sprintf("stock market after:%s before:%s",
		asOf.Format("2006-01-02"), asOf.AddDate(0, 0, 1).Format("2006-01-02"))
	params := url.Values{}
	params.Set("q", q)
	params.Set("hl", "en-US")
	params.Set("gl", "US")
	params.Set("ceid", "US:en")

	feed, err := s.parser.ParseURLWithContext(s.SearchURL+"?"+params.Encode(), ctx)
	if err != nil {
		return nil, fmt.Errorf("historical search: %w", err)
	}
	return appendTitles(nil, make(map[string]struct{}), feed.Items, DefaultHistoricalMax, true), nil
}

func appendTitles(out []string, seen map[string]struct{}, items []*gofeed.Item, limit int, withDate bool) []string {
	for i, item := range items {
		if limit > 0 && i >= limit {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		if withDate && item.Published != "" {
			title = fmt.Sprintf("[%s] %s", item.Published, title)
		}
		out = append(out, title)
	}
	return out
}

// StaticSource returns a fixed list, for tests and offline runs.
type StaticSource []string

func (s StaticSource) Headlines(context.Context, time.Time) ([]string, error) {
	return s, nil
}
