// internal/service/campaign_service.go
package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/realestate-campaigns/internal/metrics"
	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/queue"
	"github.com/unclebandit/realestate-campaigns/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	TemplateRepo repository.TemplateRepositoryInterface
	AudienceRepo repository.AudienceRepositoryInterface
	EmailRepo    repository.CampaignEmailRepositoryInterface
	StatsRepo    repository.StatisticRepositoryInterface
	Contacts     *CampaignContacts
	Tx           repository.Transactor
	Queue        queue.Queue
	Topic        string
	Log          logrus.FieldLogger
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CampaignService) topic() string {
	if s.Topic != "" {
		return s.Topic
	}
	return queue.TopicDeliveries
}

type CampaignDetails struct {
	*model.Campaign
	Audiences   []model.Audience         `json:"audiences"`
	Stats       *model.CampaignStatistic `json:"statistics,omitempty"`
	SuccessRate float64                  `json:"success_rate"`
	Executable  bool                     `json:"can_execute"`
}

// MonitorReport is the live delivery progress of one campaign.
type MonitorReport struct {
	CampaignID  int64                `json:"campaign_id"`
	Status      model.CampaignStatus `json:"status"`
	Total       int                  `json:"total_emails"`
	Sent        int                  `json:"sent_emails"`
	Failed      int                  `json:"failed_emails"`
	Pending     int                  `json:"pending_emails"`
	Progress    float64              `json:"progress"`
	SuccessRate float64              `json:"success_rate"`
	LastSentAt  *time.Time           `json:"last_sent_at,omitempty"`
}

func paginate(page, pageSize, def, max int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = def
	}
	if pageSize > max {
		pageSize = max
	}
	return page, pageSize, (page - 1) * pageSize
}

func pagination(page, pageSize, total int) map[string]int {
	return map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, orgID int64, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	page, pageSize, offset := paginate(page, pageSize, 20, 100)

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, orgID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	return campaigns, pagination(page, pageSize, total), nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, orgID, campaignID int64) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, orgID, campaignID, false)
	if err != nil {
		return nil, err
	}
	audiences, err := s.AudienceRepo.ListForCampaign(ctx, orgID, campaignID, false)
	if err != nil {
		return nil, err
	}
	stats, err := s.StatsRepo.Get(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}

	d := &CampaignDetails{
		Campaign:   campaign,
		Audiences:  audiences,
		Stats:      stats,
		Executable: len(executionErrors(campaign, len(audiences))) == 0,
	}
	if stats != nil {
		d.SuccessRate = stats.SuccessRate()
	}
	return d, nil
}

func (s *CampaignService) Monitor(ctx context.Context, orgID, campaignID int64) (*MonitorReport, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, orgID, campaignID, false)
	if err != nil {
		return nil, err
	}
	stats, err := s.StatsRepo.Get(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &model.CampaignStatistic{CampaignID: campaignID}
	}
	return &MonitorReport{
		CampaignID:  campaign.ID,
		Status:      campaign.Status,
		Total:       stats.TotalContacts,
		Sent:        stats.EmailsSent,
		Failed:      stats.EmailsFailed,
		Pending:     stats.Pending(),
		Progress:    stats.Progress(),
		SuccessRate: stats.SuccessRate(),
		LastSentAt:  stats.LastSentAt,
	}, nil
}

// ListEmails pages through the campaign's ledger, optionally by status.
func (s *CampaignService) ListEmails(ctx context.Context, orgID, campaignID int64, status string, page, perPage int) ([]model.CampaignEmail, map[string]int, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, orgID, campaignID, false); err != nil {
		return nil, nil, err
	}
	page, perPage, offset := paginate(page, perPage, 20, 100)
	emails, total, err := s.EmailRepo.ListByCampaign(ctx, orgID, campaignID, status, offset, perPage)
	if err != nil {
		return nil, nil, err
	}
	return emails, pagination(page, perPage, total), nil
}

// PreviewContacts pages through the distinct contacts the audiences would reach.
func (s *CampaignService) PreviewContacts(ctx context.Context, orgID int64, audienceIDs []int64, page, perPage int) ([]model.Contact, map[string]int, error) {
	contacts, err := s.Contacts.Preview(ctx, orgID, audienceIDs)
	if err != nil {
		return nil, nil, err
	}
	page, perPage, offset := paginate(page, perPage, 20, 100)
	total := len(contacts)
	if offset > total {
		offset = total
	}
	end := offset + perPage
	if end > total {
		end = total
	}
	return contacts[offset:end], pagination(page, perPage, total), nil
}
