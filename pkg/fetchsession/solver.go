package fetchsession

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/kumoreads/kumo/pkg/models"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// SolveResult is what the challenge-solving service hands back: the rendered
// page plus the browsing identity that passed the check.
type SolveResult struct {
	Status    int
	Body      string
	Cookies   []models.Cookie
	UserAgent string
}

// Solver is the external challenge-solving fetch collaborator. It is only
// invoked when no browsing identity exists for a session.
type Solver interface {
	Solve(ctx context.Context, url string) (*SolveResult, error)
}

// HTTPSolver talks to a FlareSolverr-compatible endpoint.
type HTTPSolver struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSolver(endpoint string, client *http.Client) *HTTPSolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSolver{endpoint: endpoint, client: client}
}

type solverRequest struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url"`
	MaxTimeout int    `json:"maxTimeout"`
}

type solverResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Solution struct {
		URL       string `json:"url"`
		Status    int    `json:"status"`
		Response  string `json:"response"`
		UserAgent string `json:"userAgent"`
		Cookies   []struct {
			Name   string `json:"name"`
			Value  string `json:"value"`
			Domain string `json:"domain"`
			Path   string `json:"path"`
		} `json:"cookies"`
	} `json:"solution"`
}

func (s *HTTPSolver) Solve(ctx context.Context, url string) (*SolveResult, error) {
	payload, err := json.Marshal(solverRequest{Cmd: "request.get", URL: url, MaxTimeout: 60000})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "solver request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("solver returned status %d", resp.StatusCode)
	}

	var parsed solverResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.WithStack(err)
	}
	if parsed.Status != "ok" {
		return nil, errors.Errorf("solver error: %s", parsed.Message)
	}

	result := &SolveResult{
		Status:    parsed.Solution.Status,
		Body:      parsed.Solution.Response,
		UserAgent: parsed.Solution.UserAgent,
	}
	for _, c := range parsed.Solution.Cookies {
		result.Cookies = append(result.Cookies, models.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return result, nil
}
