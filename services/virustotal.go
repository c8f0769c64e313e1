// Package services holds lookups against third-party reputation services.
package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const DefaultVirusTotalURL = "https://www.virustotal.com/api/v3/urls/"

type vtResponse struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
			} `json:"last_analysis_stats"`
			Title string `json:"title"`
		} `json:"attributes"`
	} `json:"data"`
}

// Verdict summarizes what VirusTotal knows about a URL.
type Verdict struct {
	Known      bool
	Malicious  int
	Suspicious int
	Title      string
}

// Flagged reports whether any engine judged the URL malicious or suspicious.
func (v Verdict) Flagged() bool {
	return v.Malicious+v.Suspicious > 0
}

func (v Verdict) String() string {
	if !v.Known {
		return "not found"
	}
	return fmt.Sprintf("%s - malicious: %d, suspicious: %d", v.Title, v.Malicious, v.Suspicious)
}

// VirusTotal looks up URL reputation. A zero API key disables lookups.
type VirusTotal struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewVirusTotal(apiKey string) *VirusTotal {
	return &VirusTotal{
		apiKey:  apiKey,
		baseURL: DefaultVirusTotalURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// WithBaseURL points the client somewhere else, for tests and proxies.
func (vt *VirusTotal) WithBaseURL(u string) *VirusTotal {
	vt.baseURL = u
	return vt
}

// Enabled reports whether an API key is configured.
func (vt *VirusTotal) Enabled() bool {
	return vt != nil && vt.apiKey != ""
}

// CheckURL fetches the last analysis of targetURL. Unknown URLs return a
// zero Verdict and no error.
func (vt *VirusTotal) CheckURL(ctx context.Context, targetURL string) (Verdict, error) {
	if !vt.Enabled() {
		return Verdict{}, nil
	}
	id := base64.RawURLEncoding.EncodeToString([]byte(targetURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vt.baseURL+id, nil)
	if err != nil {
		return Verdict{}, err
	}
	req.Header.Add("x-apikey", vt.apiKey)

	resp, err := vt.client.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("virustotal request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Verdict{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("virustotal status: %d", resp.StatusCode)
	}

	var result vtResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Verdict{}, fmt.Errorf("decode virustotal response: %w", err)
	}
	attrs := result.Data.Attributes
	return Verdict{
		Known:      true,
		Malicious:  attrs.LastAnalysisStats.Malicious,
		Suspicious: attrs.LastAnalysisStats.Suspicious,
		Title:      attrs.Title,
	}, nil
}
