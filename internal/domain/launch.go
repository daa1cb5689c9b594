package domain

// TokenLaunch is the first observed launch of a token.
// Corresponds to token_launches table in PostgreSQL.
type TokenLaunch struct {
	Address         string  // token mint address, PRIMARY KEY
	Symbol          string  // ticker symbol
	LaunchTimestamp int64   // Unix timestamp in milliseconds
	PeakMarketCap   float64 // highest observed market cap (SOL)
	Cursor          int64   // feed sequence number that produced this record
}

// BuyEvent is a confirmed buy of a token by a wallet. Immutable once produced.
// Corresponds to buy_events table in PostgreSQL.
type BuyEvent struct {
	WalletAddress  string  // buyer wallet
	TokenAddress   string  // token mint bought
	Timestamp      int64   // Unix timestamp in milliseconds
	SolAmount      float64 // SOL spent
	MarketCapAtBuy float64 // market cap at time of buy (SOL)
	TxSignature    string  // transaction signature
	Cursor         int64   // feed sequence number, strictly increasing per feed
}
