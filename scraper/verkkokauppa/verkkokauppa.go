// Package verkkokauppa scrapes Verkkokauppa.com. Product ids come from the
// public sitemap and are resolved in batches through the web API, which
// accepts a comma-separated id list.
package verkkokauppa

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"price-tracker/models"
	"price-tracker/scraper"
	"price-tracker/utils"
)

const (
	// DefaultSitemapURL points at the CDN copy, which avoids a redirect.
	DefaultSitemapURL = "https://cdn-a.verkkokauppa.com/gsitemaps1/sitemap.xml"
	// DefaultAPIURL is the products endpoint of the web API.
	DefaultAPIURL = "https://web-api.service.verkkokauppa.com/products"

	productFilter    = "/fi/product/"
	defaultBatchSize = 50
)

// /fi/product/987838/MSI-MAG-A850GL-PCIE5-II-ATX-virtalahde-850-W
var productIDPattern = regexp.MustCompile(`/fi/product/(\d+)/`)

// Scraper is the sitemap + batch API adapter for Verkkokauppa.com.
type Scraper struct {
	*scraper.Base

	baseURL    string
	SitemapURL string
	APIURL     string
}

// New creates a Verkkokauppa.com scraper for store.
func New(store *models.Store, opts scraper.Options, logger *utils.Logger) *Scraper {
	sitemap := store.SitemapURL
	if sitemap == "" {
		sitemap = DefaultSitemapURL
	}

	headers := map[string]string{
		"User-Agent": opts.UserAgent,
		"Accept":     "application/json",
	}

	return &Scraper{
		Base:       scraper.NewBase(store, opts, logger, headers),
		baseURL:    strings.TrimRight(store.BaseURL, "/"),
		SitemapURL: sitemap,
		APIURL:     DefaultAPIURL,
	}
}

// ExtractProductID returns the id of a /fi/product/{id}/{slug} URL.
func ExtractProductID(rawURL string) string {
	return scraper.ExtractWith(productIDPattern, rawURL)
}

// DiscoverCandidates yields product ids found in the sitemap, each once.
func (s *Scraper) DiscoverCandidates(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		s.Logger.Info("Fetching product URLs from %s", s.SitemapURL)
		resolver := scraper.NewSitemapResolver(s.Client(), s.Logger)
		urls := resolver.Resolve(ctx, s.SitemapURL, productFilter)
		s.Logger.Info("Found %d product URLs from sitemap", len(urls))

		seen := scraper.IDSet{}
		for _, u := range urls {
			id := ExtractProductID(u)
			if id == "" || !seen.Add(id) {
				continue
			}
			if !yield(id) {
				return
			}
		}
	}
}

// ScrapeAll groups discovered ids into batches and yields the products of
// each API response. A failed batch is reported as one BatchError.
func (s *Scraper) ScrapeAll(ctx context.Context) iter.Seq2[*models.ScrapedProduct, error] {
	return func(yield func(*models.ScrapedProduct, error) bool) {
		size := s.Opts.BatchSize
		if size <= 0 {
			size = defaultBatchSize
		}
		s.Logger.Info("Starting batch scrape of all Verkkokauppa.com products (batch size %d)", size)

		count := 0
		flush := func(batch []string) bool {
			for p, err := range s.fetchBatch(ctx, batch) {
				if err == nil {
					count++
					if count%100 == 0 {
						s.Logger.Info("Scraped %d products...", count)
					}
				}
				if !yield(p, err) {
					return false
				}
			}
			return true
		}

		batch := make([]string, 0, size)
		for id := range s.DiscoverCandidates(ctx) {
			if ctx.Err() != nil {
				return
			}
			batch = append(batch, id)
			if len(batch) < size {
				continue
			}
			if !flush(batch) {
				return
			}
			batch = batch[:0]
		}
		if len(batch) > 0 && ctx.Err() == nil {
			if !flush(batch) {
				return
			}
		}

		s.Logger.Info("Completed scraping. Success: %d", count)
	}
}

// FetchBatch resolves ids with a single API call.
func (s *Scraper) FetchBatch(ctx context.Context, ids []string) ([]*models.ScrapedProduct, error) {
	var (
		out  []*models.ScrapedProduct
		errs []error
	)
	for p, err := range s.fetchBatch(ctx, ids) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, p)
	}
	if len(errs) > 0 && len(out) == 0 {
		return nil, errs[0]
	}
	return out, nil
}

func (s *Scraper) fetchBatch(ctx context.Context, ids []string) iter.Seq2[*models.ScrapedProduct, error] {
	return func(yield func(*models.ScrapedProduct, error) bool) {
		if len(ids) == 0 {
			return
		}

		var payload any
		endpoint := strings.TrimRight(s.APIURL, "/") + "/" + strings.Join(ids, ",")
		if err := s.Client().GetJSON(ctx, endpoint, &payload); err != nil {
			s.Logger.Warn("Batch of %d products failed: %v", len(ids), err)
			yield(nil, &scraper.BatchError{Size: len(ids), Err: err})
			return
		}

		records := scraper.AsSlice(payload)
		if records == nil {
			if m := scraper.AsMap(payload); m != nil {
				records = []any{m}
			}
		}

		requested := make(map[string]bool, len(ids))
		for _, id := range ids {
			requested[id] = false
		}
		anonymous := 0

		for _, rec := range records {
			data := scraper.AsMap(rec)
			pid := scraper.IDString(data["pid"])
			if pid == "" {
				anonymous++
				s.Logger.Warn("Skipping batch record without pid")
				if !yield(nil, fmt.Errorf("%w: no pid", scraper.ErrIncomplete)) {
					return
				}
				continue
			}
			if _, ok := requested[pid]; ok {
				requested[pid] = true
			}
			p, err := s.normalize(pid, data)
			if err != nil {
				s.Logger.Warn("Skipping product %s: %v", pid, err)
				if !yield(nil, fmt.Errorf("product %s: %w", pid, err)) {
					return
				}
				continue
			}
			if !yield(p, nil) {
				return
			}
		}

		// a record without pid stands for one of the requested ids
		missing := -anonymous
		for _, seen := range requested {
			if !seen {
				missing++
			}
		}
		if missing > 0 {
			s.Logger.Warn("Batch response is missing %d of %d products", missing, len(ids))
			yield(nil, &scraper.BatchError{
				Size: missing,
				Err:  fmt.Errorf("%w: %d requested products not returned", scraper.ErrIncomplete, missing),
			})
		}
	}
}

func (s *Scraper) normalize(id string, data map[string]any) (*models.ScrapedProduct, error) {
	name := localized(data["name"])
	if name == "" {
		return nil, fmt.Errorf("%w: no name", scraper.ErrIncomplete)
	}

	priceInfo := scraper.AsMap(data["price"])
	price, err := scraper.RequirePrice(priceInfo["current"])
	if err != nil {
		return nil, err
	}

	productURL := scraper.AbsoluteURL(s.baseURL+"/", localized(data["href"]))
	if productURL == "" {
		productURL = s.baseURL + "/fi/product/" + id
	}

	var category string
	if sales := scraper.AsMap(data["sales_category"]); sales != nil {
		if path := scraper.AsSlice(sales["path"]); len(path) > 0 {
			category = scraper.Text(path[0])
		}
	}

	var image string
	if images := scraper.AsSlice(data["images"]); len(images) > 0 {
		image = scraper.FirstText(scraper.AsMap(images[0]), "300", "500")
	}

	return &models.ScrapedProduct{
		ExternalID:    id,
		Name:          name,
		URL:           productURL,
		Price:         price,
		OriginalPrice: scraper.OriginalPrice(priceInfo["original"], price),
		Brand:         scraper.Text(data["brand"]),
		Category:      category,
		ImageURL:      image,
		Description:   localized(data["description"]),
		IsAvailable:   listed(data),
	}, nil
}

// listed reports whether the product is active and visible in the shop.
// Both flags default to true when missing.
func listed(data map[string]any) bool {
	active, present := scraper.Truthy(data["active"])
	if present && !active {
		return false
	}
	visible, present := scraper.Truthy(data["visible"])
	return !present || visible
}

// localized prefers the Finnish text of a {fi, en} object.
func localized(v any) string {
	if m := scraper.AsMap(v); m != nil {
		return scraper.FirstText(m, "fi", "en")
	}
	return scraper.Text(v)
}
