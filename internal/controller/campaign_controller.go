// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/unclebandit/leadflow-backend/internal/handler"
	"github.com/unclebandit/leadflow-backend/internal/model"
	"github.com/unclebandit/leadflow-backend/internal/outreach"
	"github.com/unclebandit/leadflow-backend/internal/service"
)

// CampaignManager is the service surface the controller calls.
type CampaignManager interface {
	CreateCampaign(ctx context.Context, tenantID, accountID, name string, def model.CampaignDefinition, scheduledAt *time.Time) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, tenantID string, page, pageSize int, status string) ([]model.Campaign, map[string]int, error)
	GetCampaignDetailsWithStats(ctx context.Context, tenantID, campaignID string) (*service.CampaignDetails, error)
	UpdateDefinition(ctx context.Context, tenantID, campaignID string, def model.CampaignDefinition) error
	AttachLeads(ctx context.Context, tenantID, campaignID string, leads []*model.Lead) (int, error)
	StartCampaign(ctx context.Context, tenantID, campaignID string) (*service.StartCampaignResult, error)
	PauseCampaign(ctx context.Context, tenantID, campaignID string) error
	StopCampaign(ctx context.Context, tenantID, campaignID string) error
	CreateSequence(ctx context.Context, tenantID, campaignID string, req outreach.CreateSequenceRequest) (*outreach.SequencePlan, error)
	GetSequence(ctx context.Context, tenantID, sequenceID string) (*service.SequenceDetails, error)
}

type CampaignController struct {
	CampaignService CampaignManager
	Validate        *validator.Validate
}

func NewCampaignController(svc CampaignManager) *CampaignController {
	return &CampaignController{
		CampaignService: svc,
		Validate:        validator.New(validator.WithRequiredStructEnabled()),
	}
}

type createCampaignRequest struct {
	Name        string                   `json:"name" validate:"required"`
	AccountID   string                   `json:"account_id"`
	Definition  model.CampaignDefinition `json:"definition"`
	ScheduledAt *time.Time               `json:"scheduled_at,omitempty"`
}

type attachLeadsRequest struct {
	Leads []*model.Lead `json:"leads" validate:"required,min=1"`
}

type createSequenceRequest struct {
	AccountID  string     `json:"account_id"`
	ProfileIDs []string   `json:"profile_ids" validate:"required,min=1,dive,required"`
	Message    string     `json:"message"`
	DailyLimit int        `json:"daily_limit" validate:"gte=0"`
	StartDate  *time.Time `json:"start_date,omitempty"`
}

// Routes mounts the campaign and sequence endpoints.
func (c *CampaignController) Routes(r chi.Router) {
	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", c.CreateCampaign)
		r.Get("/", c.ListCampaigns)
		r.Get("/{id}", c.GetCampaignDetails)
		r.Put("/{id}/definition", c.UpdateDefinition)
		r.Post("/{id}/leads", c.AttachLeads)
		r.Post("/{id}/start", c.StartCampaign)
		r.Post("/{id}/pause", c.PauseCampaign)
		r.Post("/{id}/stop", c.StopCampaign)
		r.Post("/{id}/sequences", c.CreateSequence)
	})
	r.Get("/sequences/{id}", c.GetSequence)
}

// decode reads and validates a JSON body. It writes the problem response itself.
func (c *CampaignController) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		handler.BadRequest(w, r, "invalid body: "+err.Error())
		return false
	}
	if err := c.Validate.Struct(dst); err != nil {
		handler.WriteError(w, r, err)
		return false
	}
	return true
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body createCampaignRequest
	if !c.decode(w, r, &body) {
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), handler.TenantID(r.Context()),
		body.AccountID, body.Name, body.Definition, body.ScheduledAt)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), handler.TenantID(r.Context()), page, pageSize, status)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), handler.TenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, details)
}

func (c *CampaignController) UpdateDefinition(w http.ResponseWriter, r *http.Request) {
	var def model.CampaignDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		handler.BadRequest(w, r, "invalid body: "+err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := c.CampaignService.UpdateDefinition(r.Context(), handler.TenantID(r.Context()), id, def); err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]string{"campaign_id": id, "status": "updated"})
}

func (c *CampaignController) AttachLeads(w http.ResponseWriter, r *http.Request) {
	var body attachLeadsRequest
	if !c.decode(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "id")
	n, err := c.CampaignService.AttachLeads(r.Context(), handler.TenantID(r.Context()), id, body.Leads)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"campaign_id":    id,
		"leads_received": len(body.Leads),
		"leads_attached": n,
	})
}

func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	result, err := c.CampaignService.StartCampaign(r.Context(), handler.TenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusAccepted, result)
}

func (c *CampaignController) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	c.changeStatus(w, r, c.CampaignService.PauseCampaign, model.CampaignPaused)
}

func (c *CampaignController) StopCampaign(w http.ResponseWriter, r *http.Request) {
	c.changeStatus(w, r, c.CampaignService.StopCampaign, model.CampaignStopped)
}

func (c *CampaignController) changeStatus(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, tenantID, campaignID string) error, status model.CampaignStatus) {
	id := chi.URLParam(r, "id")
	if err := fn(r.Context(), handler.TenantID(r.Context()), id); err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]string{"campaign_id": id, "status": string(status)})
}

func (c *CampaignController) CreateSequence(w http.ResponseWriter, r *http.Request) {
	var body createSequenceRequest
	if !c.decode(w, r, &body) {
		return
	}
	req := outreach.CreateSequenceRequest{
		AccountID:  body.AccountID,
		ProfileIDs: body.ProfileIDs,
		Message:    body.Message,
		DailyLimit: body.DailyLimit,
	}
	if body.StartDate != nil {
		req.StartDate = *body.StartDate
	}

	plan, err := c.CampaignService.CreateSequence(r.Context(), handler.TenantID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusCreated, plan)
}

func (c *CampaignController) GetSequence(w http.ResponseWriter, r *http.Request) {
	details, err := c.CampaignService.GetSequence(r.Context(), handler.TenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handler.WriteError(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, details)
}

var _ CampaignManager = (*service.CampaignService)(nil)
