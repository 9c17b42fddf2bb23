// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/realestate-campaigns/internal/errors"
	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Log             logrus.FieldLogger
}

// Routes mounts the campaign endpoints; the caller provides the {orgID} segment.
func (c *CampaignController) Routes(r chi.Router) {
	r.Get("/", c.ListCampaigns)
	r.Post("/preview-contacts", c.PreviewContacts)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", c.GetCampaignDetails)
		r.Post("/execute", c.ExecuteCampaign)
		r.Post("/requeue", c.RequeueCampaign)
		r.Get("/monitor", c.Monitor)
		r.Get("/emails", c.ListEmails)
	})
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), orgID, page, pageSize, status)
	if err != nil {
		c.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := campaignIDs(w, r)
	if !ok {
		return
	}
	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), orgID, id)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) ExecuteCampaign(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := campaignIDs(w, r)
	if !ok {
		return
	}

	res, err := c.CampaignService.Prepare(r.Context(), orgID, id)
	var ve *appErrors.ValidationError
	var me *appErrors.MaterializationError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"message":    "Campaign execution started",
			"campaign":   res.Campaign,
			"recipients": res.Recipients,
			"job_id":     res.JobID,
		})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "Campaign cannot be executed",
			"reasons": ve.Reasons,
		})
	case errors.Is(err, appErrors.ErrAlreadyMaterialized):
		writeError(w, http.StatusConflict, "Campaign has already been executed")
	case errors.As(err, &me):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":   "Failed to start campaign execution",
			"reasons": []string{me.Reason},
		})
	default:
		c.fail(w, err)
	}
}

// RequeueCampaign publishes a fresh delivery job for a campaign stuck in running.
func (c *CampaignController) RequeueCampaign(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := campaignIDs(w, r)
	if !ok {
		return
	}
	jobID, err := c.CampaignService.Requeue(r.Context(), orgID, id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			c.fail(w, err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"campaign_id": id, "job_id": jobID})
}

func (c *CampaignController) Monitor(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := campaignIDs(w, r)
	if !ok {
		return
	}
	report, err := c.CampaignService.Monitor(r.Context(), orgID, id)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (c *CampaignController) ListEmails(w http.ResponseWriter, r *http.Request) {
	orgID, id, ok := campaignIDs(w, r)
	if !ok {
		return
	}
	status := r.URL.Query().Get("status")
	switch model.EmailStatus(status) {
	case "", model.EmailPending, model.EmailSent, model.EmailFailed:
	default:
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	emails, pagination, err := c.CampaignService.ListEmails(r.Context(), orgID, id, status,
		queryInt(r, "page", 1), queryInt(r, "per_page", 20))
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign_emails": emails,
		"total":           pagination["total_count"],
		"page":            pagination["page"],
		"per_page":        pagination["page_size"],
	})
}

type contactPreview struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

func (c *CampaignController) PreviewContacts(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return
	}
	var body struct {
		AudienceIDs []int64 `json:"audience_ids"`
		Page        int     `json:"page"`
		PerPage     int     `json:"per_page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if len(body.AudienceIDs) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "audience_ids required")
		return
	}

	contacts, pagination, err := c.CampaignService.PreviewContacts(r.Context(), orgID, body.AudienceIDs, body.Page, body.PerPage)
	if err != nil {
		c.fail(w, err)
		return
	}
	out := make([]contactPreview, len(contacts))
	for i, ct := range contacts {
		out[i] = contactPreview{
			ID:        ct.ID,
			FirstName: ct.FirstName,
			LastName:  ct.LastName,
			FullName:  ct.FullName(),
			Email:     ct.Email,
			Phone:     ct.Phone,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_contacts": pagination["total_count"],
		"contacts":       out,
		"page":           pagination["page"],
		"per_page":       pagination["page_size"],
		"total_pages":    pagination["total_pages"],
	})
}

func (c *CampaignController) fail(w http.ResponseWriter, err error) {
	var cnf *appErrors.ErrCampaignNotFound
	switch {
	case errors.As(err, &cnf):
		writeError(w, http.StatusNotFound, "Campaign not found")
	case appErrors.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		if c.Log != nil {
			c.Log.WithError(err).Error("❌ request failed")
		}
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func campaignIDs(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	orgID, ok := pathID(w, r, "orgID")
	if !ok {
		return 0, 0, false
	}
	id, ok := pathID(w, r, "id")
	return orgID, id, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
