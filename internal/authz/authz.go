// Package authz identifies the caller of an API Gateway request.
package authz

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// ErrUnauthorized is returned when no caller identity can be found.
var ErrUnauthorized = errors.New("unauthorized")

const devBypassHeader = "x-user-sub"

// header returns the value of the named header, matching the name without
// regard to case as HTTP does.
func header(h map[string]string, name string) string {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// bearerSubject reads the sub claim from the payload segment of a bearer
// token. The token is trusted as-is; API Gateway's JWT authorizer verified it.
func bearerSubject(headers map[string]string) string {
	token := strings.TrimSpace(header(headers, "Authorization"))
	if len(token) > len("bearer ") && strings.EqualFold(token[:len("bearer ")], "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return ""
	}
	var claims struct {
		Sub string `json:"sub"`
	}
	if json.Unmarshal(payload, &claims) != nil {
		return ""
	}
	return strings.TrimSpace(claims.Sub)
}

// Subject returns the caller's user sub for an HTTP API (v2) request. Lookup
// order: dev bypass header (when enabled), JWT authorizer claims, Lambda
// authorizer context, then the bearer token itself.
func Subject(req events.APIGatewayV2HTTPRequest, devBypass bool) (string, error) {
	if devBypass {
		if sub := strings.TrimSpace(header(req.Headers, devBypassHeader)); sub != "" {
			return sub, nil
		}
	}

	if a := req.RequestContext.Authorizer; a != nil {
		if a.JWT != nil {
			if sub := strings.TrimSpace(a.JWT.Claims["sub"]); sub != "" {
				return sub, nil
			}
		}
		if sub := strings.TrimSpace(asString(a.Lambda["sub"])); sub != "" {
			return sub, nil
		}
	}

	if sub := bearerSubject(req.Headers); sub != "" {
		return sub, nil
	}

	return "", ErrUnauthorized
}
