package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/gkouam/soulbondai-sub005"
)

const unavailableMessage = "temporarily unavailable, retry later"

// ErrorResponse is the body of every non-quota error.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	Fields    []string `json:"fields,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// QuotaResponse is the body of a 429.
type QuotaResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	Remaining         int64  `json:"remaining"`
	Limit             int64  `json:"limit"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// HandleError is the echo HTTPErrorHandler.
func (s *Server) HandleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var qe *soulbond.QuotaExceededError
	if errors.As(err, &qe) {
		secs := qe.RetryAfterSeconds()
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		s.write(c, http.StatusTooManyRequests, QuotaResponse{
			Error:             "quota_exceeded",
			Message:           "message limit reached for your plan, upgrade or retry later",
			Remaining:         qe.Remaining,
			Limit:             qe.Limit,
			RetryAfterSeconds: secs,
		})
		return
	}

	status, body := s.classify(err)
	body.RequestID = c.Response().Header().Get(echo.HeaderXRequestID)
	if status == http.StatusUnauthorized {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	s.write(c, status, body)
}

func (s *Server) write(c echo.Context, status int, body any) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Error("write error response", slog.String("error", err.Error()))
	}
}

func (s *Server) classify(err error) (int, ErrorResponse) {
	var verrs validator.ValidationErrors
	var he *echo.HTTPError

	switch {
	case errors.As(err, &verrs):
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field())+":"+fe.Tag())
		}
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "request failed validation", Fields: fields}
	case errors.Is(err, soulbond.ErrQueueUnavailable), errors.Is(err, soulbond.ErrStoreRequired):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: unavailableMessage}
	case errors.Is(err, soulbond.ErrInvalidRequest):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: trimPrefix(err)}
	case errors.Is(err, soulbond.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "missing or invalid bearer token"}
	case errors.Is(err, soulbond.ErrFeatureNotEntitled):
		return http.StatusForbidden, ErrorResponse{Error: "feature_not_entitled", Message: trimPrefix(err)}
	case errors.Is(err, soulbond.ErrForbidden):
		return http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: trimPrefix(err)}
	case errors.Is(err, soulbond.ErrJobNotFound), errors.Is(err, soulbond.ErrDLQNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: trimPrefix(err)}
	case errors.Is(err, soulbond.ErrAlreadyReplayed), errors.Is(err, soulbond.ErrJobAlreadyExists):
		return http.StatusConflict, ErrorResponse{Error: "conflict", Message: trimPrefix(err)}
	case errors.As(err, &he):
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && he.Code < http.StatusInternalServerError {
			msg = m
		}
		return he.Code, ErrorResponse{Error: strings.ReplaceAll(strings.ToLower(http.StatusText(he.Code)), " ", "_"), Message: msg}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "internal error"}
}

// trimPrefix drops the package prefix from an error message.
func trimPrefix(err error) string {
	return strings.TrimPrefix(err.Error(), "soulbond: ")
}
