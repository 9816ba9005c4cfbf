package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
)

const (
	searchFields  = "code,product_name,brands,image_small_url,quantity,nutrition_grade_fr,ecoscore_grade,nova_groups"
	maxBatch      = 50
	maxSearchBody = 16 << 20
)

// HTTPSource queries the products search API in batches.
type HTTPSource struct {
	base      *url.URL
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewHTTPSource creates a source rooted at baseURL. limiter may be nil.
func NewHTTPSource(baseURL string, client *http.Client, limiter *rate.Limiter, userAgent string) (*HTTPSource, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse products base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", base.Scheme)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{base: base, client: client, limiter: limiter, userAgent: userAgent}, nil
}

type searchResponse struct {
	Products []RemoteProduct `json:"products"`
}

// ProductsByBarcode fetches all barcodes, maxBatch codes per request.
func (s *HTTPSource) ProductsByBarcode(ctx context.Context, barcodes []string) ([]RemoteProduct, error) {
	var out []RemoteProduct
	for start := 0; start < len(barcodes); start += maxBatch {
		end := min(start+maxBatch, len(barcodes))
		batch, err := s.search(ctx, barcodes[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (s *HTTPSource) search(ctx context.Context, codes []string) ([]RemoteProduct, error) {
	u := s.base.ResolveReference(&url.URL{Path: "api/v2/search"})
	q := u.Query()
	q.Set("code", strings.Join(codes, ","))
	q.Set("fields", searchFields)
	u.RawQuery = q.Encode()
	target := u.String()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, terrors.NetworkError(target, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, terrors.InternalError("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, terrors.NetworkError(target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, terrors.ServerError(target, resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxSearchBody)).Decode(&body); err != nil {
		return nil, terrors.ParseError(target, err)
	}
	return body.Products, nil
}
