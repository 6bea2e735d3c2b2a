package verkkokauppa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"price-tracker/models"
	"price-tracker/scraper"
	"price-tracker/utils"
)

func productJSON(pid string) string {
	switch pid {
	case "1003":
		// no price
		return `{"pid": 1003, "name": {"fi": "Hinnaton"}, "price": {}}`
	case "1005":
		return `{"pid": 1005, "name": {"fi": "Piilotettu"}, "price": {"current": 10}, "active": true, "visible": 0}`
	}
	return fmt.Sprintf(`{
		"pid": %[1]s,
		"name": {"fi": "Tuote %[1]s", "en": "Product %[1]s"},
		"price": {"current": 79.9, "original": 99.9},
		"href": {"fi": "/fi/product/%[1]s/tuote"},
		"brand": {"name": "MSI"},
		"sales_category": {"path": [{"name": "Komponentit"}, {"name": "Virtalähteet"}]},
		"images": [{"300": "https://cdn.verkkokauppa.com/%[1]s-300.jpg", "500": "https://cdn.verkkokauppa.com/%[1]s-500.jpg"}],
		"active": true,
		"visible": 1
	}`, pid)
}

type upstream struct {
	*httptest.Server
	mu       sync.Mutex
	batches  [][]string
	failWith string
}

func newUpstream(t *testing.T, ids []string) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><urlset>`)
		for _, id := range ids {
			fmt.Fprintf(&b, `<url><loc>%s/fi/product/%s/tuote-%s</loc></url>`, u.URL, id, id)
		}
		fmt.Fprintf(&b, `<url><loc>%s/fi/catalog/1-komponentit</loc></url>`, u.URL)
		b.WriteString(`</urlset>`)
		fmt.Fprint(w, b.String())
	})
	mux.HandleFunc("/products/", func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(strings.TrimPrefix(r.URL.Path, "/products/"), ",")
		u.mu.Lock()
		u.batches = append(u.batches, ids)
		fail := u.failWith
		u.mu.Unlock()
		for _, id := range ids {
			if id == fail {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			parts = append(parts, productJSON(id))
		}
		fmt.Fprintf(w, "[%s]", strings.Join(parts, ","))
	})
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func newTestScraper(u *upstream, batchSize int) *Scraper {
	logger := utils.NewLogger()
	logger.SetOutput(io.Discard)
	store := &models.Store{ID: 1, Name: "Verkkokauppa.com", BaseURL: u.URL, SitemapURL: u.URL + "/sitemap.xml"}
	opts := scraper.Options{Timeout: 2 * time.Second, MaxRetries: 1, BatchSize: batchSize, UserAgent: "test"}
	s := New(store, opts, logger)
	s.APIURL = u.URL + "/products"
	return s
}

func drain(s *Scraper) ([]*models.ScrapedProduct, []error) {
	var (
		products []*models.ScrapedProduct
		errs     []error
	)
	for p, err := range s.ScrapeAll(context.Background()) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		products = append(products, p)
	}
	return products, errs
}

func TestScrapeAllBatches(t *testing.T) {
	u := newUpstream(t, []string{"1001", "1002", "1003", "1004", "1005"})
	s := newTestScraper(u, 2)
	defer s.Close()

	products, errs := drain(s)

	if len(u.batches) != 3 {
		t.Fatalf("batches: got %d, want 3 (%v)", len(u.batches), u.batches)
	}
	if got := len(u.batches[2]); got != 1 {
		t.Errorf("trailing batch size: got %d, want 1", got)
	}
	if len(products) != 4 {
		t.Fatalf("products: got %d, want 4", len(products))
	}
	if len(errs) != 1 || !errors.Is(errs[0], scraper.ErrIncomplete) {
		t.Fatalf("errors: got %v, want one incomplete record", errs)
	}

	p := products[0]
	if p.ExternalID != "1001" || p.Name != "Tuote 1001" {
		t.Errorf("unexpected product: %+v", p)
	}
	if p.Price != 79.9 || p.OriginalPrice == nil || *p.OriginalPrice != 99.9 {
		t.Errorf("prices: got %v / %v", p.Price, p.OriginalPrice)
	}
	if p.URL != u.URL+"/fi/product/1001/tuote" {
		t.Errorf("url: got %q", p.URL)
	}
	if p.Brand != "MSI" || p.Category != "Komponentit" {
		t.Errorf("brand/category: got %q/%q", p.Brand, p.Category)
	}
	if p.ImageURL != "https://cdn.verkkokauppa.com/1001-300.jpg" {
		t.Errorf("image: got %q", p.ImageURL)
	}
	if !p.IsAvailable {
		t.Error("active visible product should be available")
	}

	hidden := products[3]
	if hidden.ExternalID != "1005" || hidden.IsAvailable {
		t.Errorf("invisible product should be unavailable: %+v", hidden)
	}
}

func TestFailedBatchCountsEveryProduct(t *testing.T) {
	u := newUpstream(t, []string{"1001", "1002", "2001", "2002", "2003"})
	u.failWith = "2001"
	s := newTestScraper(u, 3)
	defer s.Close()

	products, errs := drain(s)

	// the first batch holds 1001, 1002 and 2001 and fails as a whole
	lost := 0
	for _, err := range errs {
		lost += scraper.LostRecords(err)
	}
	if lost != 3 {
		t.Errorf("lost records: got %d, want 3", lost)
	}
	if len(products) != 2 {
		t.Errorf("products from the healthy batch: got %d, want 2", len(products))
	}
}

func TestRecordsWithoutPidOrMissingAreCounted(t *testing.T) {
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<urlset>
			<url><loc>%[1]s/fi/product/1001/a</loc></url>
			<url><loc>%[1]s/fi/product/1002/b</loc></url>
			<url><loc>%[1]s/fi/product/1003/c</loc></url>
		</urlset>`, u.URL)
	})
	mux.HandleFunc("/products/", func(w http.ResponseWriter, r *http.Request) {
		// 1002 comes back without its pid, 1003 not at all
		fmt.Fprintf(w, `[%s, {"name": {"fi": "Nimetön"}, "price": {"current": 5}}]`, productJSON("1001"))
	})
	u.Server = httptest.NewServer(mux)
	defer u.Close()

	s := newTestScraper(u, 50)
	defer s.Close()

	products, errs := drain(s)

	if len(products) != 1 || products[0].ExternalID != "1001" {
		t.Fatalf("products: got %+v, want only 1001", products)
	}
	lost := 0
	for _, err := range errs {
		if !errors.Is(err, scraper.ErrIncomplete) {
			t.Errorf("error %v should be incomplete", err)
		}
		lost += scraper.LostRecords(err)
	}
	if lost != 2 {
		t.Errorf("lost records: got %d, want 2 (%v)", lost, errs)
	}
}

func TestDiscoverCandidatesDeduplicates(t *testing.T) {
	u := newUpstream(t, []string{"1001", "1002", "1001"})
	s := newTestScraper(u, 50)
	defer s.Close()

	var ids []string
	for id := range s.DiscoverCandidates(context.Background()) {
		ids = append(ids, id)
	}
	if strings.Join(ids, ",") != "1001,1002" {
		t.Errorf("ids: got %v", ids)
	}
}

func TestScrapeAllStopsEarly(t *testing.T) {
	u := newUpstream(t, []string{"1001", "1002", "1004", "1006"})
	s := newTestScraper(u, 2)
	defer s.Close()

	for range s.ScrapeAll(context.Background()) {
		break
	}
	if len(u.batches) != 1 {
		t.Errorf("batches requested after early stop: got %d, want 1", len(u.batches))
	}
}

func TestFetchBatchSingleObject(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, productJSON("1001"))
	}))
	defer ts.Close()

	u := &upstream{Server: ts}
	s := newTestScraper(u, 50)
	defer s.Close()

	products, err := s.FetchBatch(context.Background(), []string{"1001"})
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(products) != 1 || products[0].ExternalID != "1001" {
		t.Errorf("products: got %+v", products)
	}
}

func TestExtractProductID(t *testing.T) {
	tests := []struct {
		url, want string
	}{
		{"https://www.verkkokauppa.com/fi/product/987838/MSI-MAG-A850GL", "987838"},
		{"https://www.verkkokauppa.com/fi/catalog/987838", ""},
		{"https://www.verkkokauppa.com/fi/product/987838", ""},
	}
	for _, tt := range tests {
		if got := ExtractProductID(tt.url); got != tt.want {
			t.Errorf("ExtractProductID(%q) = %q; want %q", tt.url, got, tt.want)
		}
	}
}
