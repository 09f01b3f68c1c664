// Package clients holds the outbound integrations of the sessions and triage
// stages: the patient profile service and the OpenAI-backed assistant.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/tbourn/clinical-intake/internal/config"
	"github.com/tbourn/clinical-intake/internal/domain"
)

// ErrProfileService reports an unusable answer from the profile service.
var ErrProfileService = errors.New("profile service error")

// profileResource mirrors the profile service's JSON representation.
type profileResource struct {
	UserID                 int64    `json:"userId"`
	DateOfBirth            string   `json:"dateOfBirth"`
	Allergies              []string `json:"allergies"`
	ChronicConditions      []string `json:"chronicConditions"`
	CurrentMedications     []string `json:"currentMedications"`
	IsPregnant             bool     `json:"isPregnant"`
	ConsentForAIProcessing *bool    `json:"consentForAIProcessing"`
}

// ProfileClient reads patient profiles over HTTP. Calls are throttled by a
// token bucket shared by all callers of the client.
type ProfileClient struct {
	BaseURL string
	HTTP    *http.Client
	Limiter *rate.Limiter
	Log     zerolog.Logger
	Now     func() time.Time
}

// NewProfileClient builds a client for cfg. RPS 0 disables throttling.
func NewProfileClient(cfg config.ProfileConfig, log zerolog.Logger) *ProfileClient {
	lim := rate.NewLimiter(rate.Inf, cfg.Burst)
	if cfg.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	}
	return &ProfileClient{
		BaseURL: cfg.BaseURL,
		HTTP:    &http.Client{Timeout: cfg.Timeout},
		Limiter: lim,
		Log:     log.With().Str("component", "profile_client").Logger(),
		Now:     time.Now,
	}
}

// PatientContext returns the user's clinical context, or nil when the user has
// no profile yet.
func (c *ProfileClient) PatientContext(ctx context.Context, userID int64) (*domain.PatientContext, error) {
	p, err := c.fetch(ctx, userID)
	if err != nil || p == nil {
		return nil, err
	}
	pc := &domain.PatientContext{
		UserID:             userID,
		Age:                ageOn(p.DateOfBirth, c.Now()),
		ChronicConditions:  p.ChronicConditions,
		Allergies:          p.Allergies,
		CurrentMedications: p.CurrentMedications,
		IsPregnant:         p.IsPregnant,
		ConsentForAI:       p.ConsentForAIProcessing != nil && *p.ConsentForAIProcessing,
	}
	return pc, nil
}

// HasAIConsent reports the user's consent flag. A user whose profile does not
// exist yet is assumed to consent, since profiles are created asynchronously
// after registration.
func (c *ProfileClient) HasAIConsent(ctx context.Context, userID int64) (bool, error) {
	p, err := c.fetch(ctx, userID)
	if err != nil {
		return false, err
	}
	if p == nil {
		c.Log.Info().Int64("user_id", userID).Msg("no profile yet; assuming AI consent")
		return true, nil
	}
	return p.ConsentForAIProcessing != nil && *p.ConsentForAIProcessing, nil
}

func (c *ProfileClient) fetch(ctx context.Context, userID int64) (*profileResource, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	url := c.BaseURL + "/api/v1/profiles/user/" + strconv.FormatInt(userID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileService, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.Log.Debug().Int64("user_id", userID).Msg("profile not found")
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrProfileService, resp.StatusCode)
	}

	var p profileResource
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrProfileService, err)
	}
	return &p, nil
}

// ageOn returns completed years between an ISO date of birth and now.
func ageOn(dob string, now time.Time) *int {
	if dob == "" {
		return nil
	}
	born, err := time.Parse("2006-01-02", dob)
	if err != nil {
		return nil
	}
	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		return nil
	}
	return &years
}
