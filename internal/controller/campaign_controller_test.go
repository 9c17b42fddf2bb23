package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/realestate-campaigns/internal/controller"
	"github.com/unclebandit/realestate-campaigns/internal/model"
	"github.com/unclebandit/realestate-campaigns/internal/queue"
	"github.com/unclebandit/realestate-campaigns/internal/repository/memory"
	"github.com/unclebandit/realestate-campaigns/internal/service"
)

type nopQueue struct{}

func (nopQueue) Publish(topic string, payload any) error       { return nil }
func (nopQueue) Subscribe(topic string, h queue.Handler) error { return nil }

type testServer struct {
	store  *memory.Store
	router http.Handler
	org    model.Organization
	aud    model.Audience
}

func newTestServer() *testServer {
	log := logrus.New()
	log.Out = io.Discard

	store := memory.NewStore()
	svc := &service.CampaignService{
		CampaignRepo: store.Campaigns(),
		TemplateRepo: store.Templates(),
		AudienceRepo: store.Audiences(),
		EmailRepo:    store.Emails(),
		StatsRepo:    store.Statistics(),
		Contacts: &service.CampaignContacts{
			Audiences: store.Audiences(),
			Resolver:  &service.AudienceResolver{Contacts: store.Contacts()},
		},
		Tx:    store,
		Queue: nopQueue{},
		Log:   log,
	}
	ctrl := &controller.CampaignController{CampaignService: svc, Log: log}

	r := chi.NewRouter()
	r.Route("/organizations/{orgID}/campaigns", ctrl.Routes)

	ts := &testServer{store: store, router: r}
	ts.org = store.AddOrganization("Acme Realty")
	for i := 1; i <= 3; i++ {
		store.AddContact(model.Contact{
			OrganizationID: ts.org.ID,
			Email:          fmt.Sprintf("c%d@example.com", i),
			FirstName:      "Contact",
			LastName:       fmt.Sprint(i),
		})
	}
	ts.aud = store.AddAudience(model.Audience{OrganizationID: ts.org.ID, Name: "Everyone"})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (ts *testServer) campaignPath(id int64, suffix string) string {
	return fmt.Sprintf("/organizations/%d/campaigns/%d%s", ts.org.ID, id, suffix)
}

func (ts *testServer) literal(name string, audienceIDs ...int64) model.Campaign {
	return ts.store.AddCampaign(model.Campaign{
		OrganizationID: ts.org.ID,
		Name:           name,
		Subject:        "Hello",
		Body:           "Hi {{contact_name}}",
	}, audienceIDs...)
}

func TestListCampaignsPagination(t *testing.T) {
	ts := newTestServer()
	for i := 1; i <= 5; i++ {
		ts.literal(fmt.Sprintf("C%d", i))
	}

	path := fmt.Sprintf("/organizations/%d/campaigns?page=2&page_size=2", ts.org.ID)
	w, body := ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].([]any)
	require.Len(t, data, 2)
	first := data[0].(map[string]any)
	second := data[1].(map[string]any)
	assert.Greater(t, first["id"].(float64), second["id"].(float64))

	pagination := body["pagination"].(map[string]any)
	assert.Equal(t, float64(5), pagination["total_count"])
	assert.Equal(t, float64(3), pagination["total_pages"])
	assert.Equal(t, float64(2), pagination["page"])
}

func TestExecuteCampaign(t *testing.T) {
	ts := newTestServer()
	c := ts.literal("Launch", ts.aud.ID)

	w, body := ts.do(t, http.MethodPost, ts.campaignPath(c.ID, "/execute"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Campaign execution started", body["message"])
	assert.Equal(t, float64(3), body["recipients"])

	w, _ = ts.do(t, http.MethodPost, ts.campaignPath(c.ID, "/execute"), nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = ts.do(t, http.MethodGet, ts.campaignPath(c.ID, "/monitor"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, float64(3), body["total_emails"])
	assert.Equal(t, float64(3), body["pending_emails"])
	assert.Equal(t, float64(0), body["progress"])
}

func TestExecuteCampaignValidation(t *testing.T) {
	ts := newTestServer()
	c := ts.literal("No audience")

	w, body := ts.do(t, http.MethodPost, ts.campaignPath(c.ID, "/execute"), nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Campaign cannot be executed", body["error"])
	assert.Equal(t, []any{service.ReasonNoAudiences}, body["reasons"])
}

func TestExecuteCampaignWithoutRecipients(t *testing.T) {
	ts := newTestServer()
	empty := ts.store.AddAudience(model.Audience{
		OrganizationID: ts.org.ID,
		Name:           "Sellers",
		Filters:        model.AudienceFilter{ContactType: "seller"},
	})
	c := ts.literal("Nobody", empty.ID)

	w, body := ts.do(t, http.MethodPost, ts.campaignPath(c.ID, "/execute"), nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []any{service.ReasonNoContacts}, body["reasons"])
}

func TestCampaignNotFoundAcrossOrganizations(t *testing.T) {
	ts := newTestServer()
	other := ts.store.AddOrganization("Other Realty")
	theirs := ts.store.AddCampaign(model.Campaign{OrganizationID: other.ID, Name: "theirs"})

	w, body := ts.do(t, http.MethodGet, ts.campaignPath(theirs.ID, ""), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Campaign not found", body["error"])

	w, _ = ts.do(t, http.MethodGet, "/organizations/abc/campaigns/1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCampaignDetails(t *testing.T) {
	ts := newTestServer()
	c := ts.literal("Details", ts.aud.ID)

	w, body := ts.do(t, http.MethodGet, ts.campaignPath(c.ID, ""), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Details", body["name"])
	assert.Equal(t, true, body["can_execute"])
	assert.Len(t, body["audiences"], 1)
}

func TestListEmailsFiltersByStatus(t *testing.T) {
	ts := newTestServer()
	c := ts.literal("Ledger", ts.aud.ID)
	w, _ := ts.do(t, http.MethodPost, ts.campaignPath(c.ID, "/execute"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	emails := ts.store.EmailsFor(c.ID)
	require.NoError(t, ts.store.Emails().MarkFailed(testContext(t), ts.org.ID, emails[0].ID, "bounced"))

	w, body := ts.do(t, http.MethodGet, ts.campaignPath(c.ID, "/emails?status=failed"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(20), body["per_page"])
	rows := body["campaign_emails"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "bounced", rows[0].(map[string]any)["error_message"])

	w, body = ts.do(t, http.MethodGet, ts.campaignPath(c.ID, "/emails?per_page=2&page=2"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["total"])
	assert.Len(t, body["campaign_emails"], 1)

	w, _ = ts.do(t, http.MethodGet, ts.campaignPath(c.ID, "/emails?status=bogus"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPreviewContacts(t *testing.T) {
	ts := newTestServer()
	path := fmt.Sprintf("/organizations/%d/campaigns/preview-contacts", ts.org.ID)

	w, body := ts.do(t, http.MethodPost, path, map[string]any{})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "audience_ids required", body["error"])

	w, body = ts.do(t, http.MethodPost, path, map[string]any{"audience_ids": []int64{ts.aud.ID}, "per_page": 2})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["total_contacts"])
	assert.Equal(t, float64(2), body["total_pages"])
	contacts := body["contacts"].([]any)
	require.Len(t, contacts, 2)
	assert.Equal(t, "Contact 1", contacts[0].(map[string]any)["full_name"])
}

func TestRequeueCampaign(t *testing.T) {
	ts := newTestServer()
	c := ts.literal("Stuck", ts.aud.ID)

	w, _ := ts.do(t, http.MethodPost, ts.campaignPath(c.ID, "/requeue"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = ts.do(t, http.MethodPost, ts.campaignPath(c.ID, "/execute"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := ts.do(t, http.MethodPost, ts.campaignPath(c.ID, "/requeue"), nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, body["job_id"])
}

// testContext mirrors testing.T.Context (Go 1.24+): a context canceled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
