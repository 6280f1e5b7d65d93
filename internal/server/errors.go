package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	auditdomain "github.com/smallbiznis/dealflow/internal/audit/domain"
	authdomain "github.com/smallbiznis/dealflow/internal/auth/domain"
	"github.com/smallbiznis/dealflow/internal/authorization"
	customfielddomain "github.com/smallbiznis/dealflow/internal/customfield/domain"
	dealdomain "github.com/smallbiznis/dealflow/internal/deal/domain"
	"github.com/smallbiznis/dealflow/internal/guard"
	leaddomain "github.com/smallbiznis/dealflow/internal/lead/domain"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
	lostreasondomain "github.com/smallbiznis/dealflow/internal/lostreason/domain"
	orgdomain "github.com/smallbiznis/dealflow/internal/organization/domain"
	pipelinedomain "github.com/smallbiznis/dealflow/internal/pipeline/domain"
	productdomain "github.com/smallbiznis/dealflow/internal/product/domain"
	"github.com/smallbiznis/dealflow/internal/ratelimit"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type     string            `json:"type"`
	Message  string            `json:"message"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Resource string            `json:"resource,omitempty"`
	Limit    *int              `json:"limit,omitempty"`
	Usage    *int64            `json:"usage,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

var unauthorizedErrors = []error{
	ErrUnauthorized,
	authdomain.ErrInvalidCredentials,
	authdomain.ErrInvalidToken,
	authdomain.ErrTokenExpired,
}

var forbiddenErrors = []error{
	ErrForbidden,
	authorization.ErrForbidden,
	authorization.ErrInvalidActor,
	guard.ErrFeatureUnavailable,
	orgdomain.ErrOwnerProtected,
	orgdomain.ErrNotMember,
	authdomain.ErrNotMember,
}

var notFoundErrors = []error{
	ErrNotFound,
	gorm.ErrRecordNotFound,
	authdomain.ErrUserNotFound,
	limitdomain.ErrOrganizationNotFound,
	orgdomain.ErrOrganizationNotFound,
	orgdomain.ErrMemberNotFound,
	orgdomain.ErrInviteNotFound,
	pipelinedomain.ErrPipelineNotFound,
	pipelinedomain.ErrStageNotFound,
	dealdomain.ErrDealNotFound,
	dealdomain.ErrLeadNotFound,
	dealdomain.ErrPipelineNotFound,
	dealdomain.ErrStageNotFound,
	dealdomain.ErrLostReasonNotFound,
	dealdomain.ErrProductNotFound,
	dealdomain.ErrLineItemNotFound,
	leaddomain.ErrLeadNotFound,
	productdomain.ErrNotFound,
	lostreasondomain.ErrNotFound,
	customfielddomain.ErrNotFound,
}

var conflictErrors = []error{
	ErrConflict,
	authdomain.ErrUserExists,
	orgdomain.ErrSlugTaken,
	orgdomain.ErrMemberExists,
	orgdomain.ErrInviteExists,
	pipelinedomain.ErrWonStageExists,
	pipelinedomain.ErrLostStageExists,
	pipelinedomain.ErrPipelineHasDeals,
	pipelinedomain.ErrStageHasDeals,
	dealdomain.ErrProductAlreadyAdded,
	dealdomain.ErrValueFromLineItems,
	leaddomain.ErrPhoneTaken,
	leaddomain.ErrEmailTaken,
	leaddomain.ErrLeadHasDeals,
	productdomain.ErrSKUTaken,
	productdomain.ErrProductInUse,
	customfielddomain.ErrNameTaken,
}

var badRequestErrors = []error{
	ErrInvalidRequest,
	authorization.ErrInvalidOrganization,
	authorization.ErrInvalidObject,
	authorization.ErrInvalidAction,
	limitdomain.ErrUnknownResource,
	auditdomain.ErrInvalidOrganization,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
	auditdomain.ErrInvalidAction,
	orgdomain.ErrInvalidName,
	orgdomain.ErrInvalidSlug,
	orgdomain.ErrInvalidUser,
	orgdomain.ErrInvalidOrganization,
	orgdomain.ErrInvalidEmail,
	orgdomain.ErrInvalidRole,
	orgdomain.ErrCannotModifySelf,
	orgdomain.ErrInviteExpired,
	orgdomain.ErrInviteNotPending,
	orgdomain.ErrPasswordRequired,
	pipelinedomain.ErrInvalidOrganization,
	pipelinedomain.ErrInvalidName,
	pipelinedomain.ErrInvalidVisibility,
	pipelinedomain.ErrInvalidProbability,
	pipelinedomain.ErrStageBothTerminal,
	pipelinedomain.ErrDuplicateStageID,
	pipelinedomain.ErrMemberNotFound,
	dealdomain.ErrInvalidOrganization,
	dealdomain.ErrInvalidTitle,
	dealdomain.ErrInvalidValue,
	dealdomain.ErrInvalidProbability,
	dealdomain.ErrInvalidQuantity,
	dealdomain.ErrInvalidLineAmount,
	dealdomain.ErrInvalidAssignee,
	dealdomain.ErrStageNotInPipeline,
	dealdomain.ErrPipelineHasNoStages,
	dealdomain.ErrTerminalStageChange,
	leaddomain.ErrInvalidOrganization,
	leaddomain.ErrInvalidName,
	leaddomain.ErrInvalidPhone,
	leaddomain.ErrInvalidStatus,
	leaddomain.ErrInvalidTemperature,
	leaddomain.ErrMemberNotFound,
	productdomain.ErrInvalidOrganization,
	productdomain.ErrInvalidName,
	productdomain.ErrInvalidPrice,
	lostreasondomain.ErrInvalidOrganization,
	lostreasondomain.ErrInvalidName,
	customfielddomain.ErrInvalidOrganization,
	customfielddomain.ErrInvalidEntity,
	customfielddomain.ErrInvalidName,
	customfielddomain.ErrInvalidType,
	customfielddomain.ErrDuplicateFieldID,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// bindingError converts a gin binding failure into field-level validation errors.
func bindingError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return invalidRequestError()
	}
	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: bindingMessage(fe),
		})
	}
	return &ValidationErrors{Errors: out}
}

func bindingMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min", "max", "len":
		return fe.Field() + " must satisfy " + fe.Tag() + "=" + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	case crmRoleTag:
		return fe.Field() + " must be a valid role"
	default:
		return "invalid " + fe.Field()
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var exceeded *limitdomain.ExceededError
	if errors.As(err, &exceeded) {
		limit := exceeded.Limit
		usage := exceeded.Usage
		return http.StatusBadRequest, errorPayload{
			Type:     "limit_exceeded",
			Message:  exceeded.Error(),
			Resource: string(exceeded.Resource),
			Limit:    &limit,
			Usage:    &usage,
		}
	}

	switch {
	case errors.Is(err, limitdomain.ErrLimitExceeded):
		return http.StatusBadRequest, errorPayload{
			Type:    "limit_exceeded",
			Message: "limit exceeded",
		}
	case matchesAny(err, badRequestErrors):
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	case matchesAny(err, unauthorizedErrors):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case matchesAny(err, forbiddenErrors):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: forbiddenMessage(err),
		}
	case matchesAny(err, conflictErrors):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: rootCode(err),
		}
	case matchesAny(err, notFoundErrors):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: rootCode(err),
		}
	case errors.Is(err, ErrRateLimited), errors.Is(err, ratelimit.ErrLockBusy):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded on request logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if payload.Type != "internal_error" {
		code = rootCode(err)
	}
	return payload.Type, code
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// rootCode is the innermost sentinel text, e.g. "deal_not_found".
func rootCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func forbiddenMessage(err error) string {
	switch {
	case errors.Is(err, guard.ErrFeatureUnavailable):
		return "feature not available on the current plan"
	case errors.Is(err, orgdomain.ErrOwnerProtected):
		return "the organization owner cannot be modified"
	case errors.Is(err, orgdomain.ErrNotMember), errors.Is(err, authdomain.ErrNotMember):
		return "not a member of this organization"
	default:
		return "forbidden"
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return rootCode(err)
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "stage_not_in_pipeline":
		return "stage does not belong to the pipeline"
	case "stage_both_won_and_lost":
		return "a stage cannot be both won and lost"
	case "cannot_modify_self":
		return "you cannot change your own membership"
	default:
		if strings.HasPrefix(code, "invalid_") {
			return "invalid value"
		}
		return strings.ReplaceAll(code, "_", " ")
	}
}
