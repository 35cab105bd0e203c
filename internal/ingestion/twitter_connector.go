package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/DiegoFernandoLojanTN/TIC-Analisis-Sentimientos-SVM-OPTUNA/internal/models"
)

const (
	defaultTwitterBaseURL = "https://api.twitter.com"
	searchRecentPath      = "/2/tweets/search/recent"
	oauthTokenPath        = "/oauth2/token"
	maxSearchResults      = 100
)

// TwitterConfig configures the API v2 connector. When APIKey and APISecret are
// set, Authenticate exchanges them for an app-only bearer token; otherwise the
// static BearerToken is used.
type TwitterConfig struct {
	BaseURL     string
	BearerToken string
	APIKey      string
	APISecret   string
	UserAgent   string
	Timeout     time.Duration
	PageSize    int
}

// TwitterConnector searches recent posts through Twitter API v2.
type TwitterConnector struct {
	cfg    TwitterConfig
	http   *resty.Client
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	token    string
	rejected bool
}

// NewTwitterConnector creates a connector for the recent search endpoint.
func NewTwitterConnector(cfg TwitterConfig, logger *slog.Logger) *TwitterConnector {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwitterBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageSize <= 0 || cfg.PageSize > maxSearchResults {
		cfg.PageSize = maxSearchResults
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	client.SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		client.SetHeader("user-agent", cfg.UserAgent)
	}

	return &TwitterConnector{
		cfg:    cfg,
		http:   client,
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the connector identifier.
func (tc *TwitterConnector) Name() string {
	return "twitter-api"
}

// Authenticate obtains a bearer token. A static token that the API already
// rejected cannot be refreshed, so it fails again.
func (tc *TwitterConnector) Authenticate(ctx context.Context) error {
	if tc.cfg.APIKey != "" && tc.cfg.APISecret != "" {
		token, err := tc.exchangeToken(ctx)
		if err != nil {
			return err
		}
		tc.mu.Lock()
		tc.token = token
		tc.rejected = false
		tc.mu.Unlock()
		tc.logger.Info("obtained app-only bearer token")
		return nil
	}

	if tc.cfg.BearerToken == "" {
		return NewAuthError(errors.New("no bearer token or API credentials configured"))
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.rejected {
		return NewAuthError(errors.New("configured bearer token was rejected"))
	}
	tc.token = tc.cfg.BearerToken
	return nil
}

func (tc *TwitterConnector) exchangeToken(ctx context.Context) (string, error) {
	res, err := tc.http.R().
		SetContext(ctx).
		SetBasicAuth(tc.cfg.APIKey, tc.cfg.APISecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		Post(oauthTokenPath)
	if err != nil {
		return "", NewAuthError(fmt.Errorf("token request: %w", err))
	}
	if res.StatusCode() != http.StatusOK {
		return "", NewAuthError(fmt.Errorf("token request returned %d: %s", res.StatusCode(), truncate(res.String(), 200)))
	}

	var body struct {
		TokenType   string `json:"token_type"`
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return "", NewAuthError(fmt.Errorf("decode token response: %w", err))
	}
	if !strings.EqualFold(body.TokenType, "bearer") || body.AccessToken == "" {
		return "", NewAuthError(fmt.Errorf("unexpected token type %q", body.TokenType))
	}
	return body.AccessToken, nil
}

type apiTweet struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	AuthorID      string    `json:"author_id"`
	CreatedAt     time.Time `json:"created_at"`
	PublicMetrics struct {
		LikeCount    int `json:"like_count"`
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
		QuoteCount   int `json:"quote_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type apiUser struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

type searchResponse struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Users []apiUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

// FetchPage runs one recent search request.
func (tc *TwitterConnector) FetchPage(ctx context.Context, query string, cursor Cursor) (Page, error) {
	tc.mu.Lock()
	token := tc.token
	tc.mu.Unlock()
	if token == "" {
		return Page{}, NewAuthError(errors.New("not authenticated"))
	}

	search := TranslateQuery(query)
	params := map[string]string{
		"query":        search.Query,
		"max_results":  strconv.Itoa(tc.cfg.PageSize),
		"tweet.fields": "created_at,author_id,public_metrics,referenced_tweets,lang",
		"expansions":   "author_id",
		"user.fields":  "username,name,description,location",
	}
	if !search.Start.IsZero() {
		params["start_time"] = search.Start.Format(time.RFC3339)
	}
	if !search.End.IsZero() {
		params["end_time"] = search.End.Format(time.RFC3339)
	}
	if cursor != "" {
		params["next_token"] = string(cursor)
	}

	res, err := tc.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(params).
		Get(searchRecentPath)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, NewTransientError(fmt.Errorf("search request: %w", err))
	}

	if err := tc.checkStatus(res); err != nil {
		return Page{}, err
	}

	var body searchResponse
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return Page{}, NewTransientError(fmt.Errorf("decode search response: %w", err))
	}

	users := make(map[string]apiUser, len(body.Includes.Users))
	for _, u := range body.Includes.Users {
		users[u.ID] = u
	}

	page := Page{
		Candidates: make([]models.CandidateRecord, 0, len(body.Data)),
		NextCursor: Cursor(body.Meta.NextToken),
	}
	for _, t := range body.Data {
		page.Candidates = append(page.Candidates, toCandidate(t, users[t.AuthorID], query))
	}

	tc.logger.Debug("fetched search page",
		"results", body.Meta.ResultCount,
		"has_next", page.NextCursor != "",
	)
	return page, nil
}

func (tc *TwitterConnector) checkStatus(res *resty.Response) error {
	status := res.StatusCode()
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusBadRequest:
		return NewRequestError(fmt.Errorf("status %d: %s", status, truncate(res.String(), 200)))
	case status == http.StatusTooManyRequests:
		return NewRateLimitError(fmt.Errorf("status %d", status), tc.retryAfter(res.Header()))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		tc.mu.Lock()
		tc.rejected = true
		tc.token = ""
		tc.mu.Unlock()
		return NewAuthError(fmt.Errorf("status %d: %s", status, truncate(res.String(), 200)))
	default:
		return NewTransientError(fmt.Errorf("status %d: %s", status, truncate(res.String(), 200)))
	}
}

// retryAfter reads the reset hint from the rate limit headers.
func (tc *TwitterConnector) retryAfter(h http.Header) time.Duration {
	if v := h.Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(tc.now()); d > 0 {
				return d
			}
		}
	}
	if v := h.Get("retry-after"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}

func toCandidate(t apiTweet, u apiUser, query string) models.CandidateRecord {
	c := models.CandidateRecord{
		ID: t.ID,
		Author: models.Author{
			Handle:      u.Username,
			DisplayName: u.Name,
			Bio:         u.Description,
			Location:    u.Location,
		},
		Text:        t.Text,
		PublishedAt: t.CreatedAt,
		Engagement: map[string]int{
			models.MetricLikes:   t.PublicMetrics.LikeCount,
			models.MetricShares:  t.PublicMetrics.RetweetCount,
			models.MetricReplies: t.PublicMetrics.ReplyCount,
			models.MetricQuotes:  t.PublicMetrics.QuoteCount,
		},
		SourceQuery: query,
		Permalink:   models.BuildPermalink(u.Username, t.ID),
	}
	for _, ref := range t.ReferencedTweets {
		switch ref.Type {
		case "retweeted":
			c.IsRetweet = true
		case "replied_to":
			c.IsReply = true
		}
	}
	return c
}

// SearchRequest is a generator query translated to API v2 syntax.
type SearchRequest struct {
	Query string
	Start time.Time
	End   time.Time
}

// TranslateQuery rewrites the search-box qualifiers produced by the query
// generator into API v2 operators and time bounds. The until date is
// exclusive in both syntaxes.
func TranslateQuery(q string) SearchRequest {
	var req SearchRequest
	terms := make([]string, 0, 8)
	for _, tok := range strings.Fields(q) {
		switch {
		case tok == "-filter:retweets":
			terms = append(terms, "-is:retweet")
		case tok == "-filter:replies":
			terms = append(terms, "-is:reply")
		case strings.HasPrefix(tok, "since:"):
			if d, err := time.Parse(time.DateOnly, strings.TrimPrefix(tok, "since:")); err == nil {
				req.Start = d
			}
		case strings.HasPrefix(tok, "until:"):
			if d, err := time.Parse(time.DateOnly, strings.TrimPrefix(tok, "until:")); err == nil {
				req.End = d
			}
		default:
			terms = append(terms, tok)
		}
	}
	req.Query = strings.Join(terms, " ")
	return req
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
