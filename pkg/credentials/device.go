package credentials

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/cwbridge/proxy/pkg/cwerr"
	internalhttp "github.com/cwbridge/proxy/pkg/internal/http"
	"github.com/cwbridge/proxy/pkg/internal/polling"
)

const (
	registerClientPath      = "/client/register"
	deviceAuthorizationPath = "/device_authorization"
	tokenPath               = "/token"
)

// DeviceAuthorization is the pending-approval state returned once a device
// flow has been started. VerificationURIComplete should be shown or opened
// for the user to approve.
type DeviceAuthorization struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               int
	Interval                int

	clientID     string
	clientSecret string
	region       string
}

type registerClientResponse struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type deviceAuthorizationResponse struct {
	DeviceCode              string `json:"deviceCode"`
	UserCode                string `json:"userCode"`
	VerificationUri         string `json:"verificationUri"`
	VerificationUriComplete string `json:"verificationUriComplete"`
	ExpiresIn               int    `json:"expiresIn"`
	Interval                int    `json:"interval"`
}

type deviceTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// pollErrorCode is the OAuth device-flow error string returned in the body
// of a non-2xx /token response while the user has not yet acted.
type pollErrorCode string

const (
	errAuthorizationPending pollErrorCode = "authorization_pending"
	errSlowDown             pollErrorCode = "slow_down"
	errExpiredToken         pollErrorCode = "expired_token"
	errAccessDenied         pollErrorCode = "access_denied"
)

// StartDeviceAuthorization registers an ephemeral OAuth client and requests
// a device authorization grant, returning the code the caller should present
// to the user before polling with PollForToken.
func StartDeviceAuthorization(ctx context.Context, client *internalhttp.Client, region string) (*DeviceAuthorization, error) {
	if client == nil {
		client = internalhttp.NewClient(internalhttp.Config{})
	}
	base := fmt.Sprintf("https://oidc.%s.amazonaws.com", region)

	var reg registerClientResponse
	if err := client.PostJSON(ctx, base+registerClientPath, map[string]interface{}{
		"clientName": randomClientName(),
		"clientType": "public",
		"scopes":     []string{"codewhisperer:completions", "codewhisperer:analysis"},
	}, &reg); err != nil {
		return nil, cwerr.New(cwerr.KindTransientTransport, 0, "register device client failed", err)
	}

	var auth deviceAuthorizationResponse
	if err := client.PostJSON(ctx, base+deviceAuthorizationPath, map[string]string{
		"clientId":     reg.ClientID,
		"clientSecret": reg.ClientSecret,
		"startUrl":     "https://view.awsapps.com/start",
	}, &auth); err != nil {
		return nil, cwerr.New(cwerr.KindTransientTransport, 0, "device authorization request failed", err)
	}

	return &DeviceAuthorization{
		DeviceCode:              auth.DeviceCode,
		UserCode:                auth.UserCode,
		VerificationURI:         auth.VerificationUri,
		VerificationURIComplete: auth.VerificationUriComplete,
		ExpiresIn:               auth.ExpiresIn,
		Interval:                auth.Interval,
		clientID:                reg.ClientID,
		clientSecret:            reg.ClientSecret,
		region:                  region,
	}, nil
}

// PollForToken polls the token endpoint at the server-provided interval,
// via the shared internal/polling job poller, until the user approves, the
// grant is denied, or it expires. A slow_down response pauses an extra
// interval before the next tick rather than tightening the poller's own
// cadence.
func PollForToken(ctx context.Context, client *internalhttp.Client, auth *DeviceAuthorization) (TokenBundle, error) {
	if client == nil {
		client = internalhttp.NewClient(internalhttp.Config{})
	}
	base := fmt.Sprintf("https://oidc.%s.amazonaws.com", auth.region)

	intervalSeconds := auth.Interval
	if intervalSeconds <= 0 {
		intervalSeconds = 5
	}

	var classified error
	checker := func(ctx context.Context) (*polling.JobResult, error) {
		var resp deviceTokenResponse
		err := client.PostJSON(ctx, base+tokenPath, map[string]string{
			"clientId":     auth.clientID,
			"clientSecret": auth.clientSecret,
			"deviceCode":   auth.DeviceCode,
			"grantType":    "urn:ietf:params:oauth:grant-type:device_code",
		}, &resp)
		if err == nil && resp.AccessToken != "" {
			bundle := TokenBundle{
				AccessToken:  resp.AccessToken,
				RefreshToken: resp.RefreshToken,
				ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
				ClientID:     auth.clientID,
				ClientSecret: auth.clientSecret,
				AuthMethod:   AuthMethodIdC,
				Region:       auth.region,
			}
			return &polling.JobResult{
				Status:   polling.JobStatusCompleted,
				Metadata: map[string]interface{}{"bundle": bundle},
			}, nil
		}

		switch classifyPollError(err) {
		case errAuthorizationPending:
			return &polling.JobResult{Status: polling.JobStatusProcessing}, nil
		case errSlowDown:
			time.Sleep(time.Duration(intervalSeconds) * time.Second)
			return &polling.JobResult{Status: polling.JobStatusProcessing}, nil
		case errExpiredToken:
			classified = cwerr.New(cwerr.KindAuthExpired, 0, "device authorization expired", err)
			return &polling.JobResult{Status: polling.JobStatusFailed, Error: "expired"}, nil
		case errAccessDenied:
			classified = cwerr.New(cwerr.KindFatal, 0, "device authorization denied", err)
			return &polling.JobResult{Status: polling.JobStatusFailed, Error: "denied"}, nil
		default:
			classified = cwerr.New(cwerr.KindTransientTransport, 0, "device token poll failed", err)
			return nil, classified
		}
	}

	result, err := polling.PollForCompletion(ctx, checker, polling.PollOptions{
		PollIntervalMs: intervalSeconds * 1000,
		PollTimeoutMs:  auth.ExpiresIn * 1000,
	})
	if err != nil {
		if classified != nil {
			return TokenBundle{}, classified
		}
		if err == ctx.Err() {
			return TokenBundle{}, err
		}
		return TokenBundle{}, cwerr.New(cwerr.KindAuthExpired, 0, "device authorization expired", err)
	}

	bundle, _ := result.Metadata["bundle"].(TokenBundle)
	return bundle, nil
}

// classifyPollError best-effort extracts the OAuth error code embedded in
// an HTTP-status-as-error returned by internalhttp.Client.PostJSON.
func classifyPollError(err error) pollErrorCode {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, code := range []pollErrorCode{errAuthorizationPending, errSlowDown, errExpiredToken, errAccessDenied} {
		if strings.Contains(msg, string(code)) {
			return code
		}
	}
	return ""
}

func randomClientName() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "cwbridge-" + hex.EncodeToString(b)
}
