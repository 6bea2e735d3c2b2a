// Package power scrapes Power.fi. The store publishes no sitemap, so the
// catalog is enumerated by paging through the product list API of a fixed
// set of top-level categories. List pages already carry full product
// fields, so no detail call is made.
package power

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"price-tracker/models"
	"price-tracker/scraper"
	"price-tracker/utils"
)

const (
	// DefaultImageCDN hosts the product image variants.
	DefaultImageCDN = "https://media.power-cdn.net"

	defaultPageSize = 100
	// maxConsecutivePageFailures ends a category whose pages keep failing.
	maxConsecutivePageFailures = 3
)

// MainCategories are the top-level categories holding products, as of
// December 2024. New or renumbered categories are not picked up.
var MainCategories = []int{
	3319, // Puhelimet ja kamerat
	3313, // Kellot ja kuntoilu
	3317, // Tietotekniikka
	3320, // Pelaaminen
	3315, // TV ja audio
	3283, // Kodinkoneet
	3311, // Keittiön pienkoneet
	5016, // Smart Home
	3286, // Koti ja piha
	3312, // Kauneus ja terveys
}

// /tietotekniikka/kannettavat-tietokoneet/lenovo-ideapad/p-4126595/
var productIDPattern = regexp.MustCompile(`/p-(\d+)/`)

// Scraper is the category pagination adapter for Power.fi.
type Scraper struct {
	*scraper.Base

	baseURL    string
	ListURL    string
	ImageCDN   string
	Categories []int
}

// New creates a Power.fi scraper for store.
func New(store *models.Store, opts scraper.Options, logger *utils.Logger) *Scraper {
	base := strings.TrimRight(store.BaseURL, "/")

	headers := map[string]string{
		"User-Agent":      opts.UserAgent,
		"Accept":          "application/json",
		"Accept-Language": "fi-FI,fi;q=0.9,en;q=0.8",
		"Referer":         base + "/",
	}

	return &Scraper{
		Base:       scraper.NewBase(store, opts, logger, headers),
		baseURL:    base,
		ListURL:    base + "/api/v2/productlists",
		ImageCDN:   DefaultImageCDN,
		Categories: append([]int(nil), MainCategories...),
	}
}

// ExtractProductID returns the id of a .../p-{id}/ URL.
func ExtractProductID(rawURL string) string {
	return scraper.ExtractWith(productIDPattern, rawURL)
}

type listPage struct {
	products []map[string]any
}

// DiscoverCandidates yields one product URL per unique product id.
func (s *Scraper) DiscoverCandidates(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		s.Logger.Info("Fetching product URLs from %d Power.fi categories", len(s.Categories))
		seen := scraper.IDSet{}

		for _, cat := range s.Categories {
			for page, err := range s.pages(ctx, cat) {
				if err != nil {
					continue
				}
				for _, data := range page.products {
					id := scraper.IDString(data["productId"])
					if id == "" || !seen.Add(id) {
						continue
					}
					if !yield(s.baseURL + "/p-" + id + "/") {
						return
					}
				}
			}
		}

		s.Logger.Info("Found %d unique product URLs", len(seen))
	}
}

// ScrapeAll normalizes products straight from the list pages. A product
// listed in several categories is emitted once per call.
func (s *Scraper) ScrapeAll(ctx context.Context) iter.Seq2[*models.ScrapedProduct, error] {
	return func(yield func(*models.ScrapedProduct, error) bool) {
		s.Logger.Info("Starting API-based scrape of all Power.fi products")
		seen := scraper.IDSet{}
		count := 0

		for _, cat := range s.Categories {
			s.Logger.Info("Scraping category %d...", cat)

			for page, err := range s.pages(ctx, cat) {
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}

				for _, data := range page.products {
					id := scraper.IDString(data["productId"])
					if id == "" {
						s.Logger.Warn("Skipping listing entry without productId in category %d", cat)
						if !yield(nil, fmt.Errorf("%w: no productId", scraper.ErrIncomplete)) {
							return
						}
						continue
					}
					if !seen.Add(id) {
						continue
					}

					p, err := s.normalize(id, data)
					if err != nil {
						s.Logger.Warn("Skipping product %s: %v", id, err)
						if !yield(nil, fmt.Errorf("product %s: %w", id, err)) {
							return
						}
						continue
					}

					count++
					if count%100 == 0 {
						s.Logger.Info("Scraped %d products...", count)
					}
					if !yield(p, nil) {
						return
					}
				}
			}
		}

		s.Logger.Info("Completed scraping Power.fi. Total products: %d", count)
	}
}

// pages walks one category until the API reports the last page or returns
// an empty one. A failed page is yielded as a BatchError sized to the page
// and the walk moves on to the next offset.
func (s *Scraper) pages(ctx context.Context, category int) iter.Seq2[*listPage, error] {
	return func(yield func(*listPage, error) bool) {
		size := s.Opts.PageSize
		if size <= 0 {
			size = defaultPageSize
		}

		failures := 0
		for offset := 0; ctx.Err() == nil; offset += size {
			var data map[string]any
			err := s.Client().GetJSON(ctx, s.listURL(category, size, offset), &data)
			if err != nil {
				failures++
				s.Logger.Warn("Failed to fetch category %d page %d: %v", category, offset, err)
				if !yield(nil, &scraper.BatchError{Size: size, Err: fmt.Errorf("category %d offset %d: %w", category, offset, err)}) {
					return
				}
				if failures >= maxConsecutivePageFailures {
					s.Logger.Error("Giving up on category %d after %d failed pages", category, failures)
					return
				}
				continue
			}
			failures = 0

			raw := scraper.AsSlice(data["products"])
			if len(raw) == 0 {
				return
			}
			page := &listPage{products: make([]map[string]any, 0, len(raw))}
			for _, r := range raw {
				if m := scraper.AsMap(r); m != nil {
					page.products = append(page.products, m)
				}
			}
			if !yield(page, nil) {
				return
			}

			if last, present := scraper.Truthy(data["isLastPage"]); last || !present {
				return
			}
		}
	}
}

func (s *Scraper) listURL(category, size, offset int) string {
	q := url.Values{}
	q.Set("cat", strconv.Itoa(category))
	q.Set("size", strconv.Itoa(size))
	q.Set("from", strconv.Itoa(offset))
	return s.ListURL + "?" + q.Encode()
}

func (s *Scraper) normalize(id string, data map[string]any) (*models.ScrapedProduct, error) {
	name := scraper.FirstText(data, "title", "name")
	if name == "" {
		return nil, fmt.Errorf("%w: no name", scraper.ErrIncomplete)
	}

	price, err := scraper.RequirePrice(data["price"])
	if err != nil {
		return nil, err
	}

	productURL := scraper.AbsoluteURL(s.baseURL+"/", scraper.FirstText(data, "url"))
	if productURL == "" {
		productURL = s.baseURL + "/p-" + id + "/"
	}

	return &models.ScrapedProduct{
		ExternalID:    id,
		Name:          name,
		URL:           productURL,
		Price:         price,
		OriginalPrice: scraper.OriginalPrice(data["previousPrice"], price),
		Brand:         scraper.FirstText(data, "manufacturerName", "brand"),
		Category:      scraper.FirstText(data, "categoryName"),
		ImageURL:      s.imageURL(scraper.AsMap(data["productImage"])),
		Description:   scraper.FirstText(data, "shortDescription", "description"),
		IsAvailable:   scraper.AnyAvailable(data["stockCount"], data["storesStockCount"]),
	}, nil
}

// imageURL joins the CDN, the image base path and the 600x600 webp variant,
// or the first variant when that size is not offered.
func (s *Scraper) imageURL(img map[string]any) string {
	basePath := scraper.Text(img["basePath"])
	variants := scraper.AsSlice(img["variants"])
	if basePath == "" || len(variants) == 0 {
		return ""
	}

	var chosen string
	for _, v := range variants {
		name := scraper.Text(scraper.AsMap(v)["filename"])
		if strings.Contains(name, "600x600") && strings.HasSuffix(name, ".webp") {
			chosen = name
			break
		}
	}
	if chosen == "" {
		chosen = scraper.Text(scraper.AsMap(variants[0])["filename"])
	}
	if chosen == "" {
		return ""
	}
	return strings.TrimRight(s.ImageCDN, "/") + "/" + strings.Trim(basePath, "/") + "/" + chosen
}
