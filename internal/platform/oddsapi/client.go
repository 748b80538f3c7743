// Package oddsapi is the REST client for The Odds API, the transport behind
// the reference oracle. Every call is metered against a monthly credit quota;
// the trigger cooldown upstream of this client is what keeps the bill sane.
package oddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/oddsgap/internal/domain"
)

// Config holds the API endpoint, credentials, and market selection.
type Config struct {
	BaseURL   string
	ApiKey    string
	Sport     string
	Bookmaker string
	Region    string
	Timeout   time.Duration
}

// Client implements domain.OracleClient against The Odds API v4.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Odds API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(slog.String("component", "oddsapi")),
	}
}

// marketKey maps a venue market type onto the Odds API market key. Line
// markets use the alternate books so every quoted line is available for
// matching, not just the main one.
func marketKey(marketType domain.MarketType) (string, error) {
	switch marketType {
	case domain.MarketMoneyline:
		return "h2h", nil
	case domain.MarketTotal:
		return "alternate_totals", nil
	case domain.MarketSpread:
		return "alternate_spreads", nil
	default:
		return "", fmt.Errorf("oddsapi: unsupported market type %q", marketType)
	}
}

type apiOutcome struct {
	Name  string   `json:"name"`
	Price float64  `json:"price"`
	Point *float64 `json:"point"`
}

type apiMarket struct {
	Key      string       `json:"key"`
	Outcomes []apiOutcome `json:"outcomes"`
}

type apiBookmaker struct {
	Key     string      `json:"key"`
	Markets []apiMarket `json:"markets"`
}

type apiEvent struct {
	ID         string         `json:"id"`
	Bookmakers []apiBookmaker `json:"bookmakers"`
}

// FetchBook fetches the configured bookmaker's current outcome list for one
// game and market family.
func (c *Client) FetchBook(ctx context.Context, gameKey string, marketType domain.MarketType) (domain.OracleBook, error) {
	mkt, err := marketKey(marketType)
	if err != nil {
		return domain.OracleBook{}, err
	}

	path := fmt.Sprintf("/sports/%s/events/%s/odds", c.cfg.Sport, url.PathEscape(gameKey))
	params := url.Values{}
	params.Set("apiKey", c.cfg.ApiKey)
	params.Set("regions", c.cfg.Region)
	params.Set("markets", mkt)
	params.Set("bookmakers", c.cfg.Bookmaker)
	params.Set("oddsFormat", "decimal")

	var event apiEvent
	if err := c.get(ctx, path, params, &event); err != nil {
		return domain.OracleBook{}, fmt.Errorf("oddsapi: fetch book %s/%s: %w", gameKey, mkt, err)
	}

	book := domain.OracleBook{GameKey: gameKey, MarketType: marketType}
	for _, bm := range event.Bookmakers {
		if bm.Key != c.cfg.Bookmaker {
			continue
		}
		for _, m := range bm.Markets {
			if m.Key != mkt {
				continue
			}
			for _, oc := range m.Outcomes {
				book.Outcomes = append(book.Outcomes, domain.OracleOutcome{
					Name: oc.Name,
					Line: oc.Point,
					Odds: oc.Price,
				})
			}
		}
	}

	return book, nil
}

// ListGames returns the IDs of the games the oracle currently offers for the
// configured sport.
func (c *Client) ListGames(ctx context.Context) ([]string, error) {
	path := fmt.Sprintf("/sports/%s/odds", c.cfg.Sport)
	params := url.Values{}
	params.Set("apiKey", c.cfg.ApiKey)
	params.Set("regions", c.cfg.Region)
	params.Set("markets", "h2h")
	params.Set("bookmakers", c.cfg.Bookmaker)
	params.Set("oddsFormat", "decimal")

	var events []apiEvent
	if err := c.get(ctx, path, params, &events); err != nil {
		return nil, fmt.Errorf("oddsapi: list games: %w", err)
	}

	ids := make([]string, 0, len(events))
	for _, ev := range events {
		ids = append(ids, ev.ID)
	}
	return ids, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.cfg.BaseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	// The API reports quota consumption on every response.
	if used := resp.Header.Get("x-requests-used"); used != "" {
		c.logger.Debug("oracle credits",
			slog.String("used", used),
			slog.String("remaining", resp.Header.Get("x-requests-remaining")),
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Compile-time interface check.
var _ domain.OracleClient = (*Client)(nil)
