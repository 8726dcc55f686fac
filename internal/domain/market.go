package domain

import (
	"fmt"
	"strings"
	"time"
)

// MarketStatus represents the lifecycle state of a betting market.
type MarketStatus string

const (
	MarketStatusOpen    MarketStatus = "open"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
	MarketStatusVoid    MarketStatus = "void"
)

// Terminal reports whether the market has already been resolved.
func (s MarketStatus) Terminal() bool {
	return s == MarketStatusSettled || s == MarketStatusVoid
}

// GameStatusFinal is written to markets.game_status once settlement touches them.
const GameStatusFinal = "final"

// LockReasonSettlementSafety marks markets force-locked by the settlement engine.
const LockReasonSettlementSafety = "SETTLEMENT_SAFETY"

// Market is a single bettable proposition tied to one game.
type Market struct {
	ID               string       `json:"id"`
	SportsGameID     *string      `json:"sports_game_id,omitempty"`
	SportsDataGameID *string      `json:"sportsdata_game_id,omitempty"`
	League           string       `json:"league"`
	Status           MarketStatus `json:"market_status"`
	GameStatus       string       `json:"game_status"`
	FinalOutcome     *string      `json:"final_outcome,omitempty"`
	IsLocked         bool         `json:"is_locked"`
	LockReason       *string      `json:"lock_reason,omitempty"`
	LockedAt         *time.Time   `json:"locked_at,omitempty"`
}

// Game is the subset of a sports_games row the settlement engine reads.
type Game struct {
	ID             string     `json:"id"`
	League         string     `json:"league"`
	ExternalGameID string     `json:"external_game_id,omitempty"`
	Status         string     `json:"status"`
	SettledAt      *time.Time `json:"settled_at,omitempty"`
}

// Outcome values the decider writes to queue items. Any other value names the
// winning side (e.g. "HOME", "AWAY").
const (
	OutcomeCanceled  = "CANCELED"
	OutcomePostponed = "POSTPONED"
)

// ResolveOutcome returns the effective outcome for a queue item. A missing or
// blank outcome is treated as a cancellation.
func ResolveOutcome(outcome *string) string {
	if outcome == nil {
		return OutcomeCanceled
	}
	o := strings.ToUpper(strings.TrimSpace(*outcome))
	if o == "" {
		return OutcomeCanceled
	}
	return o
}

// IsCancellation reports whether outcome voids the game and refunds every stake.
func IsCancellation(outcome string) bool {
	return strings.EqualFold(outcome, OutcomeCanceled) || strings.EqualFold(outcome, OutcomePostponed)
}

const maxOutcomeLen = 32

// ValidateOutcome checks an outcome supplied by a decider. Nil and blank are
// accepted as cancellations; anything else must be a side name of letters,
// digits and underscores. It returns ErrInvalidOutcome otherwise.
func ValidateOutcome(outcome *string) error {
	if outcome == nil {
		return nil
	}
	o := strings.TrimSpace(*outcome)
	if o == "" {
		return nil
	}
	if len(o) > maxOutcomeLen {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidOutcome, maxOutcomeLen)
	}
	for _, r := range o {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidOutcome, o)
		}
	}
	return nil
}
