package services

import (
	"sort"

	"github.com/google/uuid"

	"giftvault/internal/models/db_models"
)

// FundingSource is a candidate source for a settlement, as seen by the
// splitter. AvailableMinor only matters for stored-value sources; external
// card/wallet sources have no known ceiling.
type FundingSource struct {
	ID             string
	Kind           db_models.SourceType
	AvailableMinor int64

	// Resolved card id for stored-value sources.
	CardID uuid.UUID

	// Gateway token for external sources.
	Token string
	Brand string
	Last4 string
}

type Split struct {
	SourceID    string
	AmountMinor int64
}

type SplitResult struct {
	Splits         []Split
	RemainingMinor int64
}

// SplitPayment computes how to divide totalMinor across the offered
// sources. Pure and deterministic: stored-value sources are drawn greedily
// in descending available-balance order (ties keep input order), then the
// residual goes to the single external source as the final step. Only
// non-zero allocations are emitted; RemainingMinor is non-zero only when
// the sources cannot cover the total.
func SplitPayment(sources []FundingSource, totalMinor int64) SplitResult {
	result := SplitResult{RemainingMinor: totalMinor}
	if totalMinor <= 0 {
		result.RemainingMinor = 0
		return result
	}

	var stored []FundingSource
	var external *FundingSource
	for i := range sources {
		if sources[i].Kind == db_models.SourceTypeGiftCard {
			stored = append(stored, sources[i])
		} else if external == nil {
			external = &sources[i]
		}
	}

	sort.SliceStable(stored, func(i, j int) bool {
		return stored[i].AvailableMinor > stored[j].AvailableMinor
	})

	remaining := totalMinor
	for _, s := range stored {
		if remaining == 0 {
			break
		}
		use := s.AvailableMinor
		if use > remaining {
			use = remaining
		}
		if use <= 0 {
			continue
		}
		result.Splits = append(result.Splits, Split{SourceID: s.ID, AmountMinor: use})
		remaining -= use
	}

	if remaining > 0 && external != nil {
		result.Splits = append(result.Splits, Split{SourceID: external.ID, AmountMinor: remaining})
		remaining = 0
	}

	result.RemainingMinor = remaining
	return result
}
