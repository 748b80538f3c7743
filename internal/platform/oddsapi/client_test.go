package oddsapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/oddsgap/internal/domain"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:   srv.URL,
		ApiKey:    "test-key",
		Sport:     "basketball_nba",
		Bookmaker: "pinnacle",
		Region:    "us",
	}, slog.Default())
}

func TestFetchBookParsesBookmakerMarkets(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sports/basketball_nba/events/game-1/odds", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("apiKey"))
		assert.Equal(t, "pinnacle", q.Get("bookmakers"))
		assert.Equal(t, "alternate_totals", q.Get("markets"))
		assert.Equal(t, "decimal", q.Get("oddsFormat"))

		w.Header().Set("x-requests-used", "42")
		w.Header().Set("x-requests-remaining", "458")
		w.Write([]byte(`{
			"id": "game-1",
			"bookmakers": [
				{"key": "draftkings", "markets": [
					{"key": "alternate_totals", "outcomes": [
						{"name": "Over", "price": 2.10, "point": 231.5}
					]}
				]},
				{"key": "pinnacle", "markets": [
					{"key": "alternate_totals", "outcomes": [
						{"name": "Over", "price": 1.91, "point": 233.5},
						{"name": "Under", "price": 1.91, "point": 233.5}
					]}
				]}
			]
		}`))
	})

	book, err := c.FetchBook(context.Background(), "game-1", domain.MarketTotal)
	require.NoError(t, err)
	assert.Equal(t, "game-1", book.GameKey)
	require.Len(t, book.Outcomes, 2, "only the configured bookmaker's outcomes count")
	assert.Equal(t, "Over", book.Outcomes[0].Name)
	require.NotNil(t, book.Outcomes[0].Line)
	assert.Equal(t, 233.5, *book.Outcomes[0].Line)
	assert.Equal(t, 1.91, book.Outcomes[0].Odds)
}

func TestFetchBookMoneylineHasNoLines(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "h2h", r.URL.Query().Get("markets"))
		w.Write([]byte(`{
			"id": "game-1",
			"bookmakers": [
				{"key": "pinnacle", "markets": [
					{"key": "h2h", "outcomes": [
						{"name": "Boston Celtics", "price": 1.50},
						{"name": "Miami Heat", "price": 2.86}
					]}
				]}
			]
		}`))
	})

	book, err := c.FetchBook(context.Background(), "game-1", domain.MarketMoneyline)
	require.NoError(t, err)
	require.Len(t, book.Outcomes, 2)
	assert.Nil(t, book.Outcomes[0].Line)
}

func TestFetchBookUnsupportedMarket(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent for an unsupported market")
	})

	_, err := c.FetchBook(context.Background(), "game-1", domain.MarketType("futures"))
	assert.Error(t, err)
}

func TestFetchBookUpstreamError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message": "invalid api key"}`))
	})

	_, err := c.FetchBook(context.Background(), "game-1", domain.MarketMoneyline)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestListGames(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sports/basketball_nba/odds", r.URL.Path)
		w.Write([]byte(`[{"id": "game-1"}, {"id": "game-2"}]`))
	})

	ids, err := c.ListGames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"game-1", "game-2"}, ids)
}
