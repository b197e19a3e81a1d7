// Package httpx provides helper functions for creating HTTP responses.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kylejryan/disaster-relief-claims/internal/authz"
	"github.com/kylejryan/disaster-relief-claims/internal/claimid"
	"github.com/kylejryan/disaster-relief-claims/internal/ddb"
	"github.com/kylejryan/disaster-relief-claims/internal/models"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// JSON creates a JSON HTTP response with the given status code and value.
func JSON(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(b),
	}, nil
}

// NoContent creates an empty 204 response.
func NoContent() (events.APIGatewayV2HTTPResponse, error) {
	return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNoContent}, nil
}

// Error creates a JSON HTTP error response with the given status code and message.
func Error(status int, msg string) (events.APIGatewayV2HTTPResponse, error) {
	return JSON(status, ErrorBody{Error: msg})
}

// FromError maps a domain or store error to a response. Errors it does not
// recognize are logged and reported as a generic 500.
func FromError(log logrus.FieldLogger, err error) (events.APIGatewayV2HTTPResponse, error) {
	var (
		ve *models.ValidationError
		te *models.InvalidTransitionError
	)
	switch {
	case errors.As(err, &ve):
		return JSON(http.StatusBadRequest, ErrorBody{Error: ve.Error(), Field: ve.Field})
	case errors.As(err, &te):
		return JSON(http.StatusConflict, ErrorBody{Error: te.Error(), From: string(te.From), To: string(te.To)})
	case errors.Is(err, ddb.ErrNotFound), errors.Is(err, models.ErrEvidenceNotFound):
		return Error(http.StatusNotFound, err.Error())
	case errors.Is(err, ddb.ErrConflict),
		errors.Is(err, ddb.ErrDuplicateID),
		errors.Is(err, models.ErrEvidenceOwned),
		errors.Is(err, models.ErrEvidenceExists):
		return Error(http.StatusConflict, err.Error())
	case errors.Is(err, authz.ErrUnauthorized):
		return Error(http.StatusUnauthorized, "missing user")
	case errors.Is(err, claimid.ErrExhausted):
		log.WithError(err).Error("claim id space exhausted")
		return Error(http.StatusServiceUnavailable, "could not allocate a claim id, retry later")
	}
	log.WithError(err).Error("request failed")
	return Error(http.StatusInternalServerError, "internal error")
}
