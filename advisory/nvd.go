package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultAPIBaseURL = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	defaultUIBaseURL  = "https://nvd.nist.gov/vuln/detail/"

	maxAdvisoriesPerQuery = 20
)

// Advisory is a published vulnerability matched against a firmware version.
type Advisory struct {
	CVEID       string    `json:"cve_id"`
	Description string    `json:"description"`
	Score       string    `json:"score"`
	Severity    string    `json:"severity"`
	Published   time.Time `json:"published"`
}

// Client queries the NVD REST API for CVEs relevant to analyzed firmware.
type Client struct {
	apiBaseURL string
	uiBaseURL  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithAPIBaseURL overrides the NVD REST endpoint.
func WithAPIBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.apiBaseURL = baseURL
	}
}

// WithUIBaseURL overrides the NVD detail page endpoint used as a
// scraping fallback.
func WithUIBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.uiBaseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates an NVD advisory client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		apiBaseURL: defaultAPIBaseURL,
		uiBaseURL:  defaultUIBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type nvdResponse struct {
	ResultsPerPage  int       `json:"resultsPerPage"`
	StartIndex      int       `json:"startIndex"`
	TotalResults    int       `json:"totalResults"`
	Vulnerabilities []cveItem `json:"vulnerabilities"`
}

type cveItem struct {
	CVE cveRecord `json:"cve"`
}

type cveRecord struct {
	ID           string           `json:"id"`
	Published    time.Time        `json:"published"`
	VulnStatus   string           `json:"vulnStatus"`
	Descriptions []cveDescription `json:"descriptions"`
	Metrics      cveMetrics       `json:"metrics"`
}

type cveDescription struct {
	Lang  string `json:"lang"`
	Value string `json:"value"`
}

type cveMetrics struct {
	CVSSMetricV40 []cvssMetric `json:"cvssMetricV40"`
	CVSSMetricV31 []cvssMetric `json:"cvssMetricV31"`
}

type cvssMetric struct {
	Source   string   `json:"source"`
	Type     string   `json:"type"`
	CvssData cvssData `json:"cvssData"`
}

type cvssData struct {
	Version      string  `json:"version"`
	VectorString string  `json:"vectorString"`
	BaseScore    float64 `json:"baseScore"`
	BaseSeverity string  `json:"baseSeverity"`
}

// Search queries NVD by keyword and returns matching advisories. The
// keyword is typically "<vendor> <model>" or "<model> <version>" taken
// from an analyzed firmware version.
func (c *Client) Search(ctx context.Context, keyword string) ([]Advisory, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("search keyword is required")
	}

	query := url.Values{}
	query.Set("keywordSearch", keyword)
	query.Set("resultsPerPage", fmt.Sprintf("%d", maxAdvisoriesPerQuery))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build NVD request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("NVD request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NVD API returned status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read NVD response: %w", err)
	}

	var nvdResp nvdResponse
	if err := json.Unmarshal(body, &nvdResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal NVD response: %w", err)
	}

	advisories := make([]Advisory, 0, len(nvdResp.Vulnerabilities))
	for _, item := range nvdResp.Vulnerabilities {
		advisories = append(advisories, c.toAdvisory(ctx, item.CVE))
	}
	return advisories, nil
}

// SearchVersions runs one keyword search per detected version string,
// deduplicating advisories by CVE ID. Lookup failures for individual
// versions are skipped so a partial NVD outage still returns results.
func (c *Client) SearchVersions(ctx context.Context, product string, versions []string) ([]Advisory, error) {
	seen := make(map[string]bool)
	var merged []Advisory
	var lastErr error

	for _, version := range versions {
		keyword := strings.TrimSpace(product + " " + version)
		advisories, err := c.Search(ctx, keyword)
		if err != nil {
			lastErr = err
			continue
		}
		for _, adv := range advisories {
			if seen[adv.CVEID] {
				continue
			}
			seen[adv.CVEID] = true
			merged = append(merged, adv)
		}
	}

	if merged == nil && lastErr != nil {
		return nil, lastErr
	}
	return merged, nil
}

func (c *Client) toAdvisory(ctx context.Context, record cveRecord) Advisory {
	adv := Advisory{
		CVEID:     record.ID,
		Published: record.Published,
		Score:     "N/A",
	}

	for _, desc := range record.Descriptions {
		if desc.Lang == "en" {
			adv.Description = desc.Value
			break
		}
	}

	score, severity := pickCVSS(record.Metrics)
	if score == "N/A" {
		// Some records carry no metrics over the REST API; the detail
		// page usually still shows a severity banner.
		if uiScore, uiSeverity, err := c.scrapeDetail(ctx, record.ID); err == nil {
			score, severity = uiScore, uiSeverity
		}
	}

	adv.Score = score
	adv.Severity = severity
	return adv
}

// pickCVSS prefers the Primary CVSS metric, falling back to any
// secondary source, v4.0 over v3.1.
func pickCVSS(metrics cveMetrics) (string, string) {
	score := "N/A"
	severity := ""

	secondaryScore := "N/A"
	secondarySeverity := ""
	for _, group := range [][]cvssMetric{metrics.CVSSMetricV40, metrics.CVSSMetricV31} {
		for _, cvss := range group {
			if cvss.Type == "Primary" {
				return fmt.Sprintf("%.1f", cvss.CvssData.BaseScore), cvss.CvssData.BaseSeverity
			}
			if secondaryScore == "N/A" {
				secondaryScore = fmt.Sprintf("%.1f", cvss.CvssData.BaseScore)
				secondarySeverity = cvss.CvssData.BaseSeverity
			}
		}
	}

	if score == "N/A" {
		score = secondaryScore
		severity = secondarySeverity
	}
	return score, severity
}

// scrapeDetail extracts the CVSS score and severity from the NVD
// detail page for records the REST API returns without metrics.
func (c *Client) scrapeDetail(ctx context.Context, cveID string) (string, string, error) {
	score := "N/A"
	severity := ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.uiBaseURL+cveID, nil)
	if err != nil {
		return score, severity, fmt.Errorf("failed to build NVD detail request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return score, severity, fmt.Errorf("NVD detail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return score, severity, fmt.Errorf("NVD detail page returned status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return score, severity, fmt.Errorf("failed to parse NVD detail page: %w", err)
	}

	doc.Find(".severityDetail").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if strings.Contains(text, "N/A") {
			return
		}
		parts := strings.Fields(text)
		if len(parts) >= 2 {
			score = parts[0]
			severity = parts[1]
		}
	})

	if score == "N/A" {
		return score, severity, fmt.Errorf("no CVSS information on NVD detail page for %s", cveID)
	}
	return score, severity, nil
}
