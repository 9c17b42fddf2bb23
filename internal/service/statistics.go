// internal/service/statistics.go
package service

import (
	"context"
	"fmt"

	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/repository"
)

// StatisticsAggregator rebuilds a campaign's counters from its ledger. It never increments.
type StatisticsAggregator struct {
	Emails repository.CampaignEmailRepositoryInterface
	Stats  repository.StatisticRepositoryInterface
}

func (a *StatisticsAggregator) Recompute(ctx context.Context, orgID, campaignID int64) (model.LedgerSummary, error) {
	sum, err := a.Emails.Summarize(ctx, orgID, campaignID)
	if err != nil {
		return sum, fmt.Errorf("failed to summarize ledger of campaign %d: %w", campaignID, err)
	}
	if err := a.Stats.Overwrite(ctx, orgID, campaignID, sum); err != nil {
		return sum, fmt.Errorf("failed to store statistics of campaign %d: %w", campaignID, err)
	}
	return sum, nil
}
