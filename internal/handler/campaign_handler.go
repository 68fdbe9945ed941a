// internal/handler/campaign_handler.go
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/moogar0880/problems"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/leadflow-backend/internal/errors"
	"github.com/unclebandit/leadflow-backend/internal/logger"
	"github.com/unclebandit/leadflow-backend/internal/service"
)

const TenantHeader = "X-Tenant-ID"

type tenantKey struct{}

// RequireTenant rejects requests without a tenant header and stores the tenant
// in the request context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get(TenantHeader)
		if tenant == "" {
			BadRequest(w, r, "missing "+TenantHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey{}, tenant)))
	})
}

func TenantID(ctx context.Context) string {
	t, _ := ctx.Value(tenantKey{}).(string)
	return t
}

// WriteJSON writes v with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, problem *problems.Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

func BadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	problem := problems.NewStatusProblem(http.StatusBadRequest).
		WithInstance(r.URL.Path).
		WithType("validation_error").
		WithDetail(detail)
	writeProblem(w, http.StatusBadRequest, problem)
}

// WriteError maps service and repository errors to problem responses.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors
	var status int
	var kind string

	switch {
	case errors.As(err, &validationErrs):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, appErrors.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case appErrors.IsConfiguration(err):
		status, kind = http.StatusUnprocessableEntity, "invalid_definition"
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrStepInUse):
		status, kind = http.StatusConflict, "conflict"
	default:
		logger.WithModule("http").Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		problem := problems.NewStatusProblem(http.StatusInternalServerError).
			WithInstance(r.URL.Path).
			WithType("internal_error").
			WithDetail("internal server error")
		writeProblem(w, http.StatusInternalServerError, problem)
		return
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(r.URL.Path).
		WithType(kind).
		WithDetail(err.Error())
	writeProblem(w, status, problem)
}
