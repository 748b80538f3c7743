package domain

import "context"

// OracleOutcome is one outcome quote from the reference book, as decimal odds.
// Line is nil for moneyline outcomes.
type OracleOutcome struct {
	Name string
	Line *float64
	Odds float64
}

// OracleBook is the raw outcome list the oracle returns for one game and
// market family, e.g. every alternate total line Pinnacle currently quotes.
type OracleBook struct {
	GameKey    string
	MarketType MarketType
	Outcomes   []OracleOutcome
}

// OracleClient fetches reference odds from the external oracle. Calls are
// metered and rate/cost-limited upstream; the trigger cooldown exists to bound
// how often this is invoked. Implementations must honor the context deadline.
type OracleClient interface {
	FetchBook(ctx context.Context, gameKey string, marketType MarketType) (OracleBook, error)
	// ListGames returns the oracle's identifiers of games currently offered,
	// used by the reference-move poller.
	ListGames(ctx context.Context) ([]string, error)
}

// Resolution is the outcome of matching an oracle book against a venue
// instrument: the accepted line and the de-vigged fair probabilities of the
// instrument's side (A) and its complement (B).
type Resolution struct {
	MatchedLine   *float64
	ImpliedProbA  float64
	ImpliedProbB  float64
}
