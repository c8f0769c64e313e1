package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const whoisBody = `{
	"domain_name": "bet.example",
	"domain_registered": "yes",
	"create_date": "2025-11-02",
	"update_date": "2025-11-03",
	"expiry_date": "2026-11-02",
	"domain_registrar": {"registrar_name": "Cheap Names LLC"},
	"registrant_contact": {
		"name": "REDACTED",
		"company": "Lucky Odds Ltd",
		"city": "Valletta",
		"country_name": "Malta",
		"mailing_address": "N/A",
		"email_address": "owner@bet.example"
	},
	"domain_status": ["clientTransferProhibited"]
}`

func TestWhoisLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "key", q.Get("apiKey"))
		assert.Equal(t, "live", q.Get("whois"))
		assert.Equal(t, "json", q.Get("format"))
		if q.Get("domainName") != "bet.example" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(whoisBody))
	}))
	defer srv.Close()

	w := NewWhois("key").WithBaseURL(srv.URL)

	info, err := w.LookupURL(context.Background(), "https://promo.bet.example/join?ref=1")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "bet.example", info.Domain)
	require.NotNil(t, info.Registered)
	assert.True(t, *info.Registered)
	assert.Equal(t, "2025-11-02", info.CreateDate)
	assert.Equal(t, "2026-11-02", info.ExpiryDate)
	assert.Equal(t, "Cheap Names LLC", info.Registrar)
	assert.Equal(t, "Lucky Odds Ltd", info.Registrant.Company)
	assert.Equal(t, "Valletta, Malta", info.Registrant.Address)
	assert.Equal(t, "owner@bet.example", info.Registrant.Email)
	assert.Equal(t, []string{"clientTransferProhibited"}, info.Status)

	_, err = w.Lookup(context.Background(), "other.example")
	assert.ErrorContains(t, err, "404")
}

func TestWhoisLookup_MissingFieldsStayEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(206)
		_, _ = w.Write([]byte(`{"domain_registered":"no","registrant_contact":{"mailing_address":"1 Main St"}}`))
	}))
	defer srv.Close()

	info, err := NewWhois("key").WithBaseURL(srv.URL).Lookup(context.Background(), "fresh.example")
	require.NoError(t, err)
	require.NotNil(t, info.Registered)
	assert.False(t, *info.Registered)
	assert.Empty(t, info.Registrar)
	assert.Empty(t, info.Status)
	assert.Equal(t, "1 Main St", info.Registrant.Address)
}

func TestWhoisLookup_DisabledWithoutKey(t *testing.T) {
	w := NewWhois("")
	assert.False(t, w.Enabled())

	info, err := w.LookupURL(context.Background(), "https://bet.example")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestDomainOf(t *testing.T) {
	for raw, want := range map[string]string{
		"https://shop.example.co.uk/x": "example.co.uk",
		"HTTP://WWW.Bet.Example/":      "bet.example",
		"linktr.ee/someone":            "linktr.ee",
	} {
		got, err := DomainOf(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := DomainOf("https://127.0.0.1:8080/")
	assert.Error(t, err)
	_, err = DomainOf("")
	assert.Error(t, err)
}
