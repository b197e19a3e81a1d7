// Package main lists the claims filed for one disaster, newest first.
package main

import (
	"context"
	"net/http"
	"strconv"
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

type lister interface {
	ListByDisaster(ctx context.Context, disasterID string, limit int) ([]models.ClaimSummary, error)
}

// App holds the application state.
type App struct {
	env    config.Env
	log    logrus.FieldLogger
	claims lister
}

// handler serves GET /disasters/{disasterId}/claims?limit=n.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if _, err := authz.Subject(req, a.env.DevBypassAuth); err != nil {
		return httpx.FromError(a.log, err)
	}
	disasterID := strings.TrimSpace(req.PathParameters["disasterId"])
	if disasterID == "" {
		return httpx.FromError(a.log, &models.ValidationError{Field: "disasterId", Reason: "is required"})
	}

	limit := 0
	if raw := req.QueryStringParameters["limit"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return httpx.FromError(a.log, &models.ValidationError{Field: "limit", Reason: "must be a positive integer"})
		}
		limit = n
	}

	items, err := a.claims.ListByDisaster(ctx, disasterID, limit)
	if err != nil {
		return httpx.FromError(a.log, err)
	}
	return httpx.JSON(http.StatusOK, api.NewClaimSummaryResponses(items))
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
		env:    env,
		log:    log,
		claims: &service.Service{Store: c.Repo(env), Artifacts: c.Artifacts(env), Log: log},
	}
	lambda.Start(app.handler)
}
