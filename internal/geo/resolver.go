// Package geo resolves a client IP to a country cohort. The service only
// admits users from the two supported countries; everything else is
// rejected before a match request is ever made.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/koibridge/match-app/internal/cohort"
)

// ErrUnsupportedCountry is returned for IPs outside KR and JP.
var ErrUnsupportedCountry = errors.New("geo: unsupported country")

// Result describes a resolved client location.
type Result struct {
	Cohort      cohort.Cohort
	CountryName string
	City        string
}

// Resolver maps a client IP to a cohort.
type Resolver interface {
	Resolve(ctx context.Context, ip string) (*Result, error)
}

const defaultBaseURL = "https://ipapi.co"

// IPAPIResolver resolves IPs via the ipapi.co lookup service. Private and
// loopback addresses resolve to the configured dev cohort when one is set,
// and are rejected otherwise.
type IPAPIResolver struct {
	client    *http.Client
	baseURL   string
	devCohort cohort.Cohort // "" disables the local-address shortcut
}

// NewIPAPIResolver creates a resolver. devCohort may be empty outside
// development.
func NewIPAPIResolver(devCohort cohort.Cohort) *IPAPIResolver {
	return &IPAPIResolver{
		client:    &http.Client{Timeout: 5 * time.Second},
		baseURL:   defaultBaseURL,
		devCohort: devCohort,
	}
}

type ipapiResponse struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
	City        string `json:"city"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

// Resolve looks up the IP and returns its cohort. Countries other than KR
// and JP fail with ErrUnsupportedCountry.
func (r *IPAPIResolver) Resolve(ctx context.Context, ip string) (*Result, error) {
	if isLocalAddr(ip) {
		if r.devCohort == "" {
			return nil, fmt.Errorf("geo: local address %s not allowed", ip)
		}
		return &Result{Cohort: r.devCohort, CountryName: r.devCohort.String() + " (dev)", City: "Development"}, nil
	}

	url := fmt.Sprintf("%s/%s/json/", r.baseURL, ip)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("geo: build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geo: lookup %s: %w", ip, err)
	}
	defer resp.Body.Close()

	var body ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("geo: decode response for %s: %w", ip, err)
	}
	if body.Error {
		return nil, fmt.Errorf("geo: lookup %s failed: %s", ip, body.Reason)
	}

	c, err := cohort.Parse(body.CountryCode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCountry, body.CountryCode)
	}

	return &Result{Cohort: c, CountryName: body.CountryName, City: body.City}, nil
}

// isLocalAddr reports whether the IP is loopback or from a private range.
func isLocalAddr(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsLoopback() || parsed.IsPrivate()
}
