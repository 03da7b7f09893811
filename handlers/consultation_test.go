package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"consultly/middleware"
	"consultly/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubService returns canned lifecycle results and records what was asked.
type stubService struct {
	created    *models.Consultation
	endedWith  string
	acceptedAs string
	err        error
}

func (s *stubService) Create(_ context.Context, req models.CreateConsultationRequest) (*models.Consultation, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.created = &models.Consultation{
		ID: "c-1", Type: req.Type,
		ClientID: req.ClientID, ClientKind: req.ClientKind, ProviderID: req.ProviderID,
		Status: models.StatusPending,
	}
	return s.created, nil
}

func (s *stubService) GetByID(_ context.Context, id string) (*models.Consultation, error) {
	if s.created == nil || s.created.ID != id {
		return nil, errors.New("consultation not found")
	}
	return s.created, nil
}

func (s *stubService) ListByClient(_ context.Context, clientID, status string) ([]models.Consultation, error) {
	return []models.Consultation{{ID: "c-1", ClientID: clientID}}, nil
}

func (s *stubService) ListByProvider(_ context.Context, providerID, status string) ([]models.Consultation, error) {
	return []models.Consultation{{ID: "c-2", ProviderID: providerID}}, nil
}

func (s *stubService) ClientAccepted(_ context.Context, id string) (*models.Consultation, error) {
	s.acceptedAs = "client"
	return &models.Consultation{ID: id, Status: models.StatusPending}, nil
}

func (s *stubService) ProviderAccepted(_ context.Context, id string) (*models.Consultation, error) {
	s.acceptedAs = "provider"
	return &models.Consultation{ID: id, Status: models.StatusOngoing}, nil
}

func (s *stubService) End(_ context.Context, id, reason string) (*models.Consultation, error) {
	s.endedWith = reason
	return &models.Consultation{ID: id, Status: models.StatusCompleted, EndReason: reason}, nil
}

func (s *stubService) ConnectionLost(ctx context.Context, id string) (*models.Consultation, error) {
	return s.End(ctx, id, models.EndReasonConnectionLost)
}

func (s *stubService) ExpirePending(_ context.Context, id string) (*models.Consultation, error) {
	return &models.Consultation{ID: id, Status: models.StatusNoAnswer}, nil
}

func newTestRouter(svc *stubService, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.CtxSubjectID, "subject-1")
		c.Set(middleware.CtxRole, role)
	})

	h := NewConsultationHandler(svc, zap.NewNop())
	r.POST("/consultations", h.CreateHandler)
	r.POST("/consultations/:id/accept", h.AcceptHandler)
	r.POST("/consultations/:id/end", h.EndHandler)
	r.GET("/consultations", h.ListHandler)
	return r
}

func TestCreateHandler(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc, models.OwnerKindUser)

	body, _ := json.Marshal(models.CreateConsultationRequest{
		Type: models.TypeAudio, ClientID: "user-1", ClientKind: "user", ProviderID: "prov-1",
	})
	req, _ := http.NewRequest("POST", "/consultations", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var got models.Consultation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, models.TypeAudio, got.Type)
}

func TestCreateHandlerRejectsBadJSON(t *testing.T) {
	router := newTestRouter(&stubService{}, models.OwnerKindUser)

	req, _ := http.NewRequest("POST", "/consultations", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAcceptHandlerRoutesByRole(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc, models.OwnerKindProvider)

	req, _ := http.NewRequest("POST", "/consultations/c-1/accept", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "provider", svc.acceptedAs)

	svc2 := &stubService{}
	router2 := newTestRouter(svc2, models.OwnerKindUser)
	req2, _ := http.NewRequest("POST", "/consultations/c-1/accept", nil)
	w2 := httptest.NewRecorder()
	router2.ServeHTTP(w2, req2)

	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "client", svc2.acceptedAs)
}

func TestEndHandlerMapsRoleToReason(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc, models.OwnerKindProvider)

	req, _ := http.NewRequest("POST", "/consultations/c-1/end", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EndReasonProviderEnded, svc.endedWith)
}

func TestListHandlerScopesBySubject(t *testing.T) {
	svc := &stubService{}
	router := newTestRouter(svc, models.OwnerKindProvider)

	req, _ := http.NewRequest("GET", "/consultations", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Consultations []models.Consultation `json:"consultations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Consultations, 1)
	assert.Equal(t, "subject-1", resp.Consultations[0].ProviderID)
}
