package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	htmlSearchPath   = "/search"
	htmlDateLayout   = "Jan 2, 2006 · 3:04 PM MST"
)

var statusIDRegex = regexp.MustCompile(`/status/(\d+)`)

// HTMLConfig configures the HTML search connector.
type HTMLConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// HTMLConnector scrapes the search results of a Nitter-style HTML frontend.
type HTMLConnector struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewHTMLConnector creates a connector for the frontend at cfg.BaseURL.
func NewHTMLConnector(cfg HTMLConfig, logger *slog.Logger) (*HTMLConnector, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid search base url %q", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", cfg.UserAgent)
	client.SetHeader("accept-language", "es-EC,es;q=0.9")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))
	client.SetTimeout(cfg.Timeout)

	return &HTMLConnector{http: client, logger: logger}, nil
}

// Name returns the connector identifier.
func (c *HTMLConnector) Name() string {
	return "html-search"
}

// Authenticate checks that the frontend answers. The frontend needs no
// credentials, so an unreachable instance is the only failure.
func (c *HTMLConnector) Authenticate(ctx context.Context) error {
	res, err := c.http.R().SetContext(ctx).Get("/")
	if err != nil {
		return NewAuthError(fmt.Errorf("reach search frontend: %w", err))
	}
	if res.StatusCode() >= 400 {
		return NewAuthError(fmt.Errorf("search frontend returned %d", res.StatusCode()))
	}
	return nil
}

// FetchPage requests one page of search results.
func (c *HTMLConnector) FetchPage(ctx context.Context, query string, cursor Cursor) (Page, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("f", "tweets").
		SetQueryParam("q", query)
	if cursor != "" {
		req.SetQueryParam("cursor", string(cursor))
	}

	res, err := req.Get(htmlSearchPath)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, NewTransientError(fmt.Errorf("search request: %w", err))
	}

	switch status := res.StatusCode(); {
	case status == http.StatusTooManyRequests || status == http.StatusForbidden:
		return Page{}, NewRateLimitError(fmt.Errorf("status %d", status), 0)
	case status == http.StatusUnauthorized:
		return Page{}, NewAuthError(fmt.Errorf("status %d", status))
	case status != http.StatusOK:
		return Page{}, NewTransientError(fmt.Errorf("status %d", status))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return Page{}, NewTransientError(fmt.Errorf("parse search page: %w", err))
	}
	return ParseSearchPage(doc, query, c.logger)
}

// ParseSearchPage extracts the candidates and the next cursor from a search
// results document. Items without a status link are skipped.
func ParseSearchPage(doc *goquery.Document, query string, logger *slog.Logger) (Page, error) {
	if doc.Find(".timeline").Length() == 0 && doc.Find(".timeline-item").Length() == 0 {
		if msg := strings.TrimSpace(doc.Find(".error-panel").Text()); msg != "" {
			return Page{}, NewTransientError(errors.New(msg))
		}
		return Page{}, NewTransientError(errors.New("unexpected search page layout"))
	}

	var page Page
	doc.Find(".timeline-item").Each(func(_ int, item *goquery.Selection) {
		c, ok := parseItem(item, query)
		if !ok {
			logger.Debug("skipping search item without status link")
			return
		}
		page.Candidates = append(page.Candidates, c)
	})

	doc.Find(".show-more a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if next := u.Query().Get("cursor"); next != "" {
			page.NextCursor = Cursor(next)
		}
	})

	return page, nil
}

func parseItem(item *goquery.Selection, query string) (models.CandidateRecord, bool) {
	href := item.Find("a.tweet-link").AttrOr("href", "")
	m := statusIDRegex.FindStringSubmatch(href)
	if m == nil {
		return models.CandidateRecord{}, false
	}

	handle := strings.TrimPrefix(strings.TrimSpace(item.Find("a.username").First().Text()), "@")
	c := models.CandidateRecord{
		ID: m[1],
		Author: models.Author{
			Handle:      handle,
			DisplayName: strings.TrimSpace(item.Find("a.fullname").First().Text()),
		},
		Text:        strings.TrimSpace(item.Find(".tweet-content").First().Text()),
		Engagement:  make(map[string]int, 4),
		SourceQuery: query,
		Permalink:   models.BuildPermalink(handle, m[1]),
		IsRetweet:   item.Find(".retweet-header").Length() > 0,
		IsReply:     item.Find(".replying-to").Length() > 0,
	}

	if title, ok := item.Find(".tweet-date a").Attr("title"); ok {
		if t, err := time.Parse(htmlDateLayout, title); err == nil {
			c.PublishedAt = t
		}
	}

	item.Find(".tweet-stats .tweet-stat").Each(func(_ int, stat *goquery.Selection) {
		n := parseCount(stat.Text())
		switch {
		case stat.Find(".icon-heart").Length() > 0:
			c.Engagement[models.MetricLikes] = n
		case stat.Find(".icon-retweet").Length() > 0:
			c.Engagement[models.MetricShares] = n
		case stat.Find(".icon-comment").Length() > 0:
			c.Engagement[models.MetricReplies] = n
		case stat.Find(".icon-quote").Length() > 0:
			c.Engagement[models.MetricQuotes] = n
		}
	})

	return c, true
}

// parseCount reads counters such as "1,204" or "" (zero).
func parseCount(s string) int {
	s = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
