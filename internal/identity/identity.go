// Package identity verifies bearer tokens against the external identity
// provider. Everything downstream trusts the Profile this package returns;
// no other part of the system looks at raw tokens.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Fazzolix/matningsabo/pkg/platform/circuit"
)

// ErrInvalidToken means the provider rejected the token.
var ErrInvalidToken = errors.New("identity: invalid token")

// ErrProviderDown means the provider has been failing and the breaker is
// open, so the call was not attempted.
var ErrProviderDown = errors.New("identity: provider unavailable")

// Profile is the verified identity of a caller.
type Profile struct {
	SubjectID   string
	Email       string
	DisplayName string
	GivenName   string
}

// Verifier checks a bearer token and returns the caller's profile.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Profile, error)
}

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// GraphVerifier validates tokens by asking Microsoft Graph for the profile
// they belong to. A token Graph accepts is a token we accept.
type GraphVerifier struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
	breaker *circuit.Breaker
}

func NewGraphVerifier(logger *slog.Logger) *GraphVerifier {
	return &GraphVerifier{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: graphBaseURL,
		logger:  logger,
		breaker: circuit.New("graph"),
	}
}

type graphProfile struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	GivenName         string `json:"givenName"`
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

func (v *GraphVerifier) Verify(ctx context.Context, token string) (*Profile, error) {
	if v.breaker.IsOpen() {
		return nil, ErrProviderDown
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		v.recordFailure()
		return nil, fmt.Errorf("identity: provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// The provider is healthy, it just disliked this token.
		v.recordSuccess()
		return nil, ErrInvalidToken
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		v.recordFailure()
		v.logger.Error("identity provider returned unexpected status",
			slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("identity: provider status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		v.logger.Error("identity provider returned unexpected status",
			slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("identity: provider status %d", resp.StatusCode)
	}
	v.recordSuccess()

	var gp graphProfile
	if err := json.NewDecoder(resp.Body).Decode(&gp); err != nil {
		return nil, fmt.Errorf("identity: decode profile: %w", err)
	}
	email := gp.Mail
	if email == "" {
		email = gp.UserPrincipalName
	}
	return &Profile{
		SubjectID:   gp.ID,
		Email:       email,
		DisplayName: gp.DisplayName,
		GivenName:   gp.GivenName,
	}, nil
}

func (v *GraphVerifier) recordFailure() {
	if _, change := v.breaker.RecordFailure(); change.Opened {
		v.logger.Error("identity provider breaker opened")
	}
}

func (v *GraphVerifier) recordSuccess() {
	if _, change := v.breaker.RecordSuccess(); change.Closed {
		v.logger.Info("identity provider breaker closed")
	}
}
