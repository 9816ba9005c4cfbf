// Package robotoff asks the Robotoff service for product questions and
// submits answers to them.
package robotoff

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/logfields"
)

const maxResponseBytes = 1 << 20

// Question is one pending question about a product.
type Question struct {
	Barcode        string `json:"barcode"`
	Type           string `json:"type"`
	Value          string `json:"value"`
	Question       string `json:"question"`
	InsightID      string `json:"insight_id"`
	InsightType    string `json:"insight_type"`
	SourceImageURL string `json:"source_image_url,omitempty"`
}

type questionsResponse struct {
	Status    string     `json:"status"`
	Questions []Question `json:"questions"`
}

// Answer is the annotation value for an insight.
type Answer int

const (
	AnswerNo     Answer = 0
	AnswerYes    Answer = 1
	AnswerUnsure Answer = -1
)

// ParseAnswer accepts yes/no/skip as well as the numeric values.
func ParseAnswer(raw string) (Answer, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "1":
		return AnswerYes, nil
	case "no", "n", "0":
		return AnswerNo, nil
	case "skip", "unsure", "-1":
		return AnswerUnsure, nil
	}
	return 0, fmt.Errorf("invalid answer: %q (want yes, no or skip)", raw)
}

// AnnotationResponse is the service's reply to an annotation.
type AnnotationResponse struct {
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
}

// Credentials returns the login used for annotations.
type Credentials func() (user, password string)

// StaticCredentials returns fixed credentials.
func StaticCredentials(user, password string) Credentials {
	return func() (string, string) { return user, password }
}

// Client talks to the Robotoff API.
type Client struct {
	base        *url.URL
	http        *http.Client
	limiter     *rate.Limiter
	userAgent   string
	credentials Credentials
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithLimiter paces requests.
func WithLimiter(l *rate.Limiter) Option {
	return func(cl *Client) { cl.limiter = l }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(cl *Client) { cl.userAgent = ua }
}

// WithCredentials sets the login used for annotations.
func WithCredentials(c Credentials) Option {
	return func(cl *Client) { cl.credentials = c }
}

// New creates a client rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse robotoff base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", base.Scheme)
	}
	// Relative API paths resolve below the base path, not beside it.
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	c := &Client{base: base, http: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Question returns the first pending question for code in lang, or nil when
// there is none.
func (c *Client) Question(ctx context.Context, code, lang string) (*Question, error) {
	u := c.base.ResolveReference(&url.URL{Path: "api/v1/questions/" + url.PathEscape(code)})
	q := u.Query()
	q.Set("lang", lang)
	q.Set("count", "1")
	u.RawQuery = q.Encode()

	req, err := c.newRequest(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	var body questionsResponse
	if err := c.do(req, &body); err != nil {
		return nil, err
	}
	if len(body.Questions) == 0 {
		slog.Debug("No Robotoff question", logfields.Barcode(code))
		return nil, nil
	}
	return &body.Questions[0], nil
}

// Annotate answers an insight. The request carries basic auth only when both
// user and password are non-blank; otherwise the annotation is anonymous.
func (c *Client) Annotate(ctx context.Context, insightID string, answer Answer) (*AnnotationResponse, error) {
	form := url.Values{}
	form.Set("insight_id", insightID)
	form.Set("annotation", strconv.Itoa(int(answer)))
	form.Set("update", "1")

	u := c.base.ResolveReference(&url.URL{Path: "api/v1/insights/annotate"})
	req, err := c.newRequest(ctx, http.MethodPost, u.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if c.credentials != nil {
		user, pass := c.credentials()
		user, pass = strings.TrimSpace(user), strings.TrimSpace(pass)
		if user != "" && pass != "" {
			req.SetBasicAuth(user, pass)
		}
	}

	var resp AnnotationResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, terrors.NetworkError(target, err)
		}
	}
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, terrors.InternalError("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	target := req.URL.String()
	resp, err := c.http.Do(req)
	if err != nil {
		return terrors.NetworkError(target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return terrors.ServerError(target, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return terrors.ParseError(target, err)
	}
	return nil
}
