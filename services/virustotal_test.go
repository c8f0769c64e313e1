package services

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckURL(t *testing.T) {
	flagged := base64.RawURLEncoding.EncodeToString([]byte("https://bad.example"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-apikey"))
		if !strings.HasSuffix(r.URL.Path, flagged) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"attributes":{"title":"Bad","last_analysis_stats":{"malicious":3,"suspicious":1}}}}`))
	}))
	defer srv.Close()

	vt := NewVirusTotal("key").WithBaseURL(srv.URL + "/")

	v, err := vt.CheckURL(context.Background(), "https://bad.example")
	require.NoError(t, err)
	assert.True(t, v.Flagged())
	assert.Equal(t, 3, v.Malicious)
	assert.Contains(t, v.String(), "Bad")

	v, err = vt.CheckURL(context.Background(), "https://fine.example")
	require.NoError(t, err)
	assert.False(t, v.Known)
	assert.False(t, v.Flagged())
}

func TestCheckURL_DisabledWithoutKey(t *testing.T) {
	vt := NewVirusTotal("")
	assert.False(t, vt.Enabled())

	v, err := vt.CheckURL(context.Background(), "https://x.example")
	require.NoError(t, err)
	assert.False(t, v.Flagged())
}

func TestCheckURL_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewVirusTotal("key").WithBaseURL(srv.URL+"/").CheckURL(context.Background(), "https://x.example")
	assert.Error(t, err)
}
