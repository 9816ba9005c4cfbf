package history

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s, err := NewStore(db)
	require.NoError(t, err)
	return s
}

func barcodes(products []Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.Barcode
	}
	return out
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range []Product{
		{Barcode: "300", Title: "banana", Brands: "Zeta", NutritionGrade: "c"},
		{Barcode: "100", Title: "", Brands: "", NutritionGrade: "a"},
		{Barcode: "200", Title: "Apple", Brands: "alpha", NutritionGrade: "b"},
	} {
		p.LastSeen = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Add(t.Context(), p))
	}
}

func TestListSortOrders(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	cases := map[SortType][]string{
		SortNone:    {"300", "100", "200"},
		SortTitle:   {"200", "300", "100"}, // "No title" sorts under N
		SortBrand:   {"200", "100", "300"}, // "No brand" between alpha and Zeta
		SortBarcode: {"100", "200", "300"},
		SortGrade:   {"100", "200", "300"},
		SortTime:    {"200", "100", "300"},
	}
	for by, want := range cases {
		t.Run(string(by), func(t *testing.T) {
			got, err := s.List(t.Context(), by)
			require.NoError(t, err)
			require.Equal(t, want, barcodes(got))
		})
	}
}

func TestAddBumpsLastSeenAndKeepsInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	later := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Add(t.Context(), Product{Barcode: "300", Title: "banana", LastSeen: later}))

	byTime, err := s.List(t.Context(), SortTime)
	require.NoError(t, err)
	require.Equal(t, "300", byTime[0].Barcode)
	require.True(t, byTime[0].LastSeen.Equal(later))

	none, err := s.List(t.Context(), SortNone)
	require.NoError(t, err)
	require.Equal(t, []string{"300", "100", "200"}, barcodes(none))
}

func TestRemoveAndClear(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	require.NoError(t, s.Remove(t.Context(), "100"))
	require.NoError(t, s.Remove(t.Context(), "missing"))
	got, err := s.List(t.Context(), SortBarcode)
	require.NoError(t, err)
	require.Equal(t, []string{"200", "300"}, barcodes(got))

	require.NoError(t, s.Clear(t.Context()))
	got, err = s.List(t.Context(), SortNone)
	require.NoError(t, err)
	require.Empty(t, got)
}

type stubSource struct {
	products []RemoteProduct
	err      error
	asked    []string
	during   func()
}

func (s *stubSource) ProductsByBarcode(_ context.Context, codes []string) ([]RemoteProduct, error) {
	s.asked = append(s.asked, codes...)
	if s.during != nil {
		s.during()
	}
	return s.products, s.err
}

func ptr(s string) *string { return &s }

func TestRefreshMergesOnlyPresentFields(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	src := &stubSource{products: []RemoteProduct{
		{Code: "100", ProductName: ptr("Cherry"), NovaGroups: ptr("4")},
		{Code: "200", Brands: ptr("")},
	}}
	got, err := s.Refresh(t.Context(), src, SortBarcode)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"300", "100", "200"}, src.asked)

	require.Equal(t, "Cherry", got[0].Title)
	require.Equal(t, "4", got[0].NovaGroup)
	require.Equal(t, "a", got[0].NutritionGrade)
	require.Equal(t, "Apple", got[1].Title)
	require.Empty(t, got[1].Brands)

	stored, err := s.List(t.Context(), SortBarcode)
	require.NoError(t, err)
	require.Equal(t, got, stored)
}

func TestRefreshKeepsChangesMadeDuringFetch(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	rescanned := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	src := &stubSource{
		products: []RemoteProduct{
			{Code: "300", ProductName: ptr("Banana split")},
			{Code: "200", ProductName: ptr("Apple pie")},
		},
		during: func() {
			require.NoError(t, s.Add(t.Context(), Product{
				Barcode: "300", Title: "banana", Brands: "Zeta", Quantity: "1 kg", LastSeen: rescanned,
			}))
			require.NoError(t, s.Remove(t.Context(), "200"))
		},
	}
	got, err := s.Refresh(t.Context(), src, SortBarcode)
	require.NoError(t, err)
	require.Equal(t, []string{"100", "300"}, barcodes(got))

	require.Equal(t, "Banana split", got[1].Title)
	require.Equal(t, "1 kg", got[1].Quantity)
	require.Equal(t, rescanned.UnixMilli(), got[1].LastSeen.UnixMilli())

	stored, err := s.List(t.Context(), SortBarcode)
	require.NoError(t, err)
	require.Equal(t, got, stored)
}

func TestRefreshFailureLeavesHistoryIntact(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	before, err := s.List(t.Context(), SortNone)
	require.NoError(t, err)

	_, err = s.Refresh(t.Context(), &stubSource{err: errors.New("offline")}, SortNone)
	require.Error(t, err)

	after, err := s.List(t.Context(), SortNone)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestRefreshEmptyHistorySkipsSource(t *testing.T) {
	s := newTestStore(t)
	src := &stubSource{err: errors.New("must not be called")}
	got, err := s.Refresh(t.Context(), src, SortTime)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, src.asked)
}

func TestHTTPSourceKeepsBasePath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/off/api/v2/search", r.URL.Path)
		_, _ = w.Write([]byte(`{"products":[]}`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL+"/off", srv.Client(), nil, "taxosync-test")
	require.NoError(t, err)
	products, err := src.ProductsByBarcode(t.Context(), []string{"123"})
	require.NoError(t, err)
	require.Empty(t, products)
}

func TestHTTPSourceBatchesCodes(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/search", r.URL.Path)
		codes := r.URL.Query().Get("code")
		queries = append(queries, codes)
		first := strings.Split(codes, ",")[0]
		_, _ = w.Write([]byte(`{"products":[{"code":"` + first + `","product_name":"P"}]}`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, srv.Client(), nil, "taxosync-test")
	require.NoError(t, err)

	codes := make([]string, maxBatch+1)
	for i := range codes {
		codes[i] = strings.Repeat("1", i+1)
	}
	products, err := src.ProductsByBarcode(t.Context(), codes)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	require.Len(t, products, 2)
	require.Equal(t, "P", *products[0].ProductName)
	require.Nil(t, products[0].Brands)
}

func TestHTTPSourceReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, srv.Client(), nil, "")
	require.NoError(t, err)
	_, err = src.ProductsByBarcode(t.Context(), []string{"1"})
	require.Equal(t, http.StatusBadGateway, terrors.StatusCode(err))
}

func TestParseSortType(t *testing.T) {
	st, err := ParseSortType("TITLE")
	require.NoError(t, err)
	require.Equal(t, SortTitle, st)

	st, err = ParseSortType("")
	require.NoError(t, err)
	require.Equal(t, SortTime, st)

	_, err = ParseSortType("popularity")
	require.Error(t, err)
}
