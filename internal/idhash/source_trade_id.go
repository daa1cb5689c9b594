package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSourceTradeID computes the idempotency key of a mirrored order.
// Formula: SHA256(session_id|target_wallet|tx_signature|event_index)
// Returns hex-encoded hash (64 characters). Replays of the same target trade
// for the same follower session always produce the same id.
func ComputeSourceTradeID(
	sessionID string,
	targetWallet string,
	txSignature string,
	eventIndex int,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		sessionID,
		targetWallet,
		txSignature,
		eventIndex,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeExitTradeID derives the id of an exit order from the position it closes.
// Formula: SHA256(source_trade_id|exit|reason)
func ComputeExitTradeID(sourceTradeID, reason string) string {
	hash := sha256.Sum256([]byte(sourceTradeID + "|exit|" + reason))
	return hex.EncodeToString(hash[:])
}
