// Package main attaches evidence to claims and hands out presigned S3 URLs for
// uploading the artifacts.
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
	"github.com/kylejryan/disaster-relief-claims/internal/s3io"
	"github.com/kylejryan/disaster-relief-claims/internal/service"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

type evidence interface {
	AddEvidence(ctx context.Context, id string, in models.EvidenceInput, actor string) (models.Evidence, s3io.Upload, error)
	RemoveEvidence(ctx context.Context, id, evidenceID, actor string) error
}

// App holds the application state, including configuration and the workflow service.
type App struct {
	env      config.Env
	log      logrus.FieldLogger
	evidence evidence
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
		env:      env,
		log:      log,
		evidence: &service.Service{Store: c.Repo(env), Artifacts: c.Artifacts(env), Log: log},
	}
	lambda.Start(app.handler)
}

// handler processes the incoming API Gateway request for the evidence routes.
func (a *App) handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	actor, err := authz.Subject(req, a.env.DevBypassAuth)
	if err != nil {
		return httpx.FromError(a.log, err)
	}
	claimID := req.PathParameters["claimId"]

	switch req.RouteKey {
	case "POST /claims/{claimId}/evidence":
		body, err := parseRequest(req.Body)
		if err != nil {
			return httpx.Error(http.StatusBadRequest, err.Error())
		}
		ev, upload, err := a.evidence.AddEvidence(ctx, claimID, body.Input(), actor)
		if err != nil {
			return httpx.FromError(a.log, err)
		}
		return httpx.JSON(http.StatusCreated, api.NewAddEvidenceResponse(ev, upload))
	case "DELETE /claims/{claimId}/evidence/{evidenceId}":
		if err := a.evidence.RemoveEvidence(ctx, claimID, req.PathParameters["evidenceId"], actor); err != nil {
			return httpx.FromError(a.log, err)
		}
		return httpx.NoContent()
	default:
		return httpx.Error(http.StatusNotFound, "route not found")
	}
}

// parseRequest decodes the JSON body and trims the free-text fields.
func parseRequest(body string) (api.AddEvidenceRequest, error) {
	var req api.AddEvidenceRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return req, errors.New("invalid json")
	}
	req.Filename = strings.TrimSpace(req.Filename)
	req.Description = strings.TrimSpace(req.Description)
	return req, nil
}
