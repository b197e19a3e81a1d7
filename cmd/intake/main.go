// Package main serves the claim routes: submit, read, change status and delete.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kylejryan/disaster-relief-claims/internal/api"
	"github.com/kylejryan/disaster-relief-claims/internal/authz"
	"github.com/kylejryan/disaster-relief-claims/internal/awsutil"
	"github.com/kylejryan/disaster-relief-claims/internal/config"
	"github.com/kylejryan/disaster-relief-claims/internal/httpx"
	"github.com/kylejryan/disaster-relief-claims/internal/logging"
	"github.com/kylejryan/disaster-relief-claims/internal/models"
	"github.com/kylejryan/disaster-relief-claims/internal/service"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

// claims is the part of the workflow service this lambda uses.
type claims interface {
	Submit(ctx context.Context, in models.ClaimInput, actor string) (*models.Claim, error)
	Get(ctx context.Context, id string) (*models.Claim, error)
	Transition(ctx context.Context, id string, target models.ClaimStatus, actor string) (*models.Claim, error)
	Delete(ctx context.Context, id, actor string) error
}

// App holds the application state.
type App struct {
	env    config.Env
	log    logrus.FieldLogger
	claims claims
}

func main() {
	env := config.MustLoad()
	log := logging.New(env.LogLevel)

	cfg, err := awsutil.Load(context.Background(), env)
	if err != nil {
		log.WithError(err).Fatal("load aws config")
	}
	c := awsutil.NewClients(cfg, env)

	app := &App{
		env: env,
		log: log,
		claims: &service.Service{
			Store:      c.Repo(env),
			Artifacts:  c.Artifacts(env),
			Log:        log,
			IDAttempts: env.IDAttempts,
		},
	}
	lambda.Start(app.handler)
}

// handler routes an HTTP API request on its route key.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	actor, err := authz.Subject(req, a.env.DevBypassAuth)
	if err != nil {
		return httpx.FromError(a.log, err)
	}
	id := req.PathParameters["claimId"]

	switch req.RouteKey {
	case "POST /claims":
		return a.create(ctx, req.Body, actor)
	case "GET /claims/{claimId}":
		c, err := a.claims.Get(ctx, id)
		if err != nil {
			return httpx.FromError(a.log, err)
		}
		return httpx.JSON(http.StatusOK, api.NewClaimResponse(c.View()))
	case "POST /claims/{claimId}/status":
		return a.transition(ctx, id, req.Body, actor)
	case "DELETE /claims/{claimId}":
		if err := a.claims.Delete(ctx, id, actor); err != nil {
			return httpx.FromError(a.log, err)
		}
		return httpx.NoContent()
	default:
		return httpx.Error(http.StatusNotFound, "route not found")
	}
}

func (a *App) create(ctx context.Context, body, actor string) (events.APIGatewayV2HTTPResponse, error) {
	req, err := parseCreateRequest(body)
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err.Error())
	}
	c, err := a.claims.Submit(ctx, req.Input(), actor)
	if err != nil {
		return httpx.FromError(a.log, err)
	}
	return httpx.JSON(http.StatusCreated, api.NewClaimResponse(c.View()))
}

// parseCreateRequest decodes the JSON body and trims the text fields. The
// disaster id ends up in claim ids and artifact keys, so padding must not survive.
func parseCreateRequest(body string) (api.CreateClaimRequest, error) {
	var req api.CreateClaimRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return req, errors.New("invalid json")
	}
	for _, f := range []*string{
		&req.DisasterID,
		&req.ClaimantName,
		&req.ClaimantEmail,
		&req.ClaimantPhone,
		&req.PropertyAddress,
		&req.PostalCode,
		&req.DamageDescription,
	} {
		*f = strings.TrimSpace(*f)
	}
	return req, nil
}

func (a *App) transition(ctx context.Context, id, body, actor string) (events.APIGatewayV2HTTPResponse, error) {
	var req api.TransitionRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return httpx.Error(http.StatusBadRequest, "invalid json")
	}
	if !req.Status.IsValid() {
		return httpx.FromError(a.log, &models.ValidationError{Field: "status", Reason: "is not a known claim status"})
	}
	c, err := a.claims.Transition(ctx, id, req.Status, actor)
	if err != nil {
		return httpx.FromError(a.log, err)
	}
	return httpx.JSON(http.StatusOK, api.NewClaimResponse(c.View()))
}
