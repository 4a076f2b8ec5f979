package ligscreensdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal ligscreen HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Ligand is one catalog entry.
type Ligand struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
}

// LigandStatus reports whether a ligand's result file could be collected.
type LigandStatus struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Rows       int    `json:"rows"`
	ResultPath string `json:"result_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Results is the combined table plus per-ligand collection status.
type Results struct {
	Columns []string            `json:"columns"`
	Rows    []map[string]string `json:"rows"`
	Ligands []LigandStatus      `json:"ligands"`
}

// ScoredLigand is one ranked row.
type ScoredLigand struct {
	Rank          int               `json:"rank"`
	Name          string            `json:"name"`
	Affinity      float64           `json:"affinity"`
	LDDT          float64           `json:"lddt"`
	NormAffinity  float64           `json:"norm_affinity"`
	NormLDDT      float64           `json:"norm_lddt"`
	CombinedScore float64           `json:"combined_score"`
	Columns       map[string]string `json:"columns,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health pings the server. It does not need a token.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "v0/health", &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("unexpected health status %q", resp.Status)
	}
	return nil
}

// Ligands lists the catalog.
func (c *Client) Ligands(ctx context.Context) ([]Ligand, error) {
	var resp struct {
		Ligands []Ligand `json:"ligands"`
	}
	err := c.do(ctx, http.MethodGet, "v0/ligands", &resp)
	return resp.Ligands, err
}

// Results returns the combined results currently on disk.
func (c *Client) Results(ctx context.Context) (Results, error) {
	var resp Results
	err := c.do(ctx, http.MethodGet, "v0/results", &resp)
	return resp, err
}

// Top returns the k best ligands. k <= 0 defers to the server's configured top_k.
func (c *Client) Top(ctx context.Context, k int) ([]ScoredLigand, error) {
	endpoint := "v0/top"
	if k > 0 {
		endpoint = fmt.Sprintf("%s?k=%d", endpoint, k)
	}
	var resp struct {
		Ligands []ScoredLigand `json:"ligands"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, &resp)
	return resp.Ligands, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.NewDecoder(bytes.NewReader(b)).Decode(&env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
