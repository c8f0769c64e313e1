package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const DefaultWhoisURL = "https://api.whoisfreaks.com/v1.0/whois"

type whoisResponse struct {
	DomainName       string   `json:"domain_name"`
	DomainRegistered string   `json:"domain_registered"`
	CreateDate       string   `json:"create_date"`
	UpdateDate       string   `json:"update_date"`
	ExpiryDate       string   `json:"expiry_date"`
	DomainStatus     []string `json:"domain_status"`
	DomainRegistrar  struct {
		RegistrarName string `json:"registrar_name"`
	} `json:"domain_registrar"`
	RegistrantContact struct {
		Name           string `json:"name"`
		Company        string `json:"company"`
		Street         string `json:"street"`
		City           string `json:"city"`
		State          string `json:"state"`
		ZipCode        string `json:"zip_code"`
		CountryName    string `json:"country_name"`
		MailingAddress string `json:"mailing_address"`
		EmailAddress   string `json:"email_address"`
	} `json:"registrant_contact"`
}

// Registrant is the registrant contact of a domain, as far as it is public.
type Registrant struct {
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
}

// DomainInfo is the registration record of a domain. Registered is nil when
// the registry did not say.
type DomainInfo struct {
	Domain     string     `json:"domain"`
	Registered *bool      `json:"registered,omitempty"`
	CreateDate string     `json:"create_date,omitempty"`
	UpdateDate string     `json:"update_date,omitempty"`
	ExpiryDate string     `json:"expiry_date,omitempty"`
	Registrar  string     `json:"registrar,omitempty"`
	Registrant Registrant `json:"registrant"`
	Status     []string   `json:"status,omitempty"`
}

// Whois looks up domain registration records. A zero API key disables
// lookups.
type Whois struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewWhois(apiKey string) *Whois {
	return &Whois{
		apiKey:  apiKey,
		baseURL: DefaultWhoisURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// WithBaseURL points the client somewhere else, for tests and proxies.
func (w *Whois) WithBaseURL(u string) *Whois {
	w.baseURL = u
	return w
}

func (w *Whois) Enabled() bool {
	return w != nil && w.apiKey != ""
}

// DomainOf returns the registrable domain of rawURL, so
// https://shop.example.co.uk/x yields example.co.uk. A missing scheme is
// tolerated.
func DomainOf(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.New("url has no host")
	}
	if net.ParseIP(host) != nil {
		return "", fmt.Errorf("%s is an address, not a domain", host)
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("registrable domain of %s: %w", host, err)
	}
	return domain, nil
}

// LookupURL fetches the registration record of the domain rawURL points to.
// It returns nil and no error when lookups are disabled.
func (w *Whois) LookupURL(ctx context.Context, rawURL string) (*DomainInfo, error) {
	if !w.Enabled() {
		return nil, nil
	}
	domain, err := DomainOf(rawURL)
	if err != nil {
		return nil, err
	}
	return w.Lookup(ctx, domain)
}

// Lookup fetches the live registration record of domain.
func (w *Whois) Lookup(ctx context.Context, domain string) (*DomainInfo, error) {
	params := url.Values{}
	params.Set("apiKey", w.apiKey)
	params.Set("whois", "live")
	params.Set("domainName", domain)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whois request: %w", err)
	}
	defer resp.Body.Close()

	// 206 is a partial record and 210 a cached one; both carry a body.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("whois status: %d", resp.StatusCode)
	}

	var result whoisResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode whois response: %w", err)
	}

	info := &DomainInfo{
		Domain:     domain,
		CreateDate: result.CreateDate,
		UpdateDate: result.UpdateDate,
		ExpiryDate: result.ExpiryDate,
		Registrar:  result.DomainRegistrar.RegistrarName,
		Status:     result.DomainStatus,
	}
	switch strings.ToLower(result.DomainRegistered) {
	case "yes":
		registered := true
		info.Registered = &registered
	case "no":
		registered := false
		info.Registered = &registered
	}

	c := result.RegistrantContact
	info.Registrant = Registrant{Name: c.Name, Company: c.Company, Email: c.EmailAddress}
	var parts []string
	for _, p := range []string{c.Street, c.City, c.State, c.ZipCode, c.CountryName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	info.Registrant.Address = strings.Join(parts, ", ")
	if info.Registrant.Address == "" && c.MailingAddress != "N/A" {
		info.Registrant.Address = c.MailingAddress
	}
	return info, nil
}
