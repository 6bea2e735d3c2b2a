// Package gigantti scrapes Gigantti.fi through its product sitemap and the
// per-product JSON endpoints behind the web shop.
package gigantti

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
	// DefaultSitemapURL is used when the store row carries no sitemap.
	DefaultSitemapURL = "https://www.gigantti.fi/sitemaps/OCFIGIG.pdp.index.sitemap.xml"
	productFilter     = "/product/"
)

// Product URLs end in the numeric id:
// /product/puhelimet-tabletit-ja-alykellot/puhelimet/samsung-galaxy/820912
var productIDPattern = regexp.MustCompile(`/(\d+)(?:\?|$)`)

// Scraper is the sitemap + detail API adapter for Gigantti.
type Scraper struct {
	*scraper.Base

	baseURL    string
	SitemapURL string
	// CardURL and PriceURL are fmt patterns taking the product id.
	CardURL  string
	PriceURL string
}

// New creates a Gigantti scraper for store.
func New(store *models.Store, opts scraper.Options, logger *utils.Logger) *Scraper {
	base := strings.TrimRight(store.BaseURL, "/")
	sitemap := store.SitemapURL
	if sitemap == "" {
		sitemap = DefaultSitemapURL
	}

	headers := map[string]string{
		"User-Agent":      opts.UserAgent,
		"Accept":          "application/json",
		"Accept-Language": "fi-FI,fi;q=0.9,en;q=0.8",
		"Referer":         base + "/",
	}

	return &Scraper{
		Base:       scraper.NewBase(store, opts, logger, headers),
		baseURL:    base,
		SitemapURL: sitemap,
		CardURL:    base + "/api/product/%s/card",
		PriceURL:   base + "/api/price/%s",
	}
}

// ExtractProductID returns the id at the end of a product URL.
func ExtractProductID(rawURL string) string {
	return scraper.ExtractWith(productIDPattern, rawURL)
}

// DiscoverCandidates yields product page URLs from the sitemap.
func (s *Scraper) DiscoverCandidates(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		s.Logger.Info("Fetching product URLs from %s", s.SitemapURL)
		resolver := scraper.NewSitemapResolver(s.Client(), s.Logger)
		urls := resolver.Resolve(ctx, s.SitemapURL, productFilter)
		s.Logger.Info("Found %d product URLs from sitemap", len(urls))

		for _, u := range urls {
			if !yield(u) {
				return
			}
		}
	}
}

// ScrapeAll fetches every product listed in the sitemap, one at a time.
func (s *Scraper) ScrapeAll(ctx context.Context) iter.Seq2[*models.ScrapedProduct, error] {
	return func(yield func(*models.ScrapedProduct, error) bool) {
		s.Logger.Info("Starting API-based scrape of all Gigantti products")
		count, errs := 0, 0

		for u := range s.DiscoverCandidates(ctx) {
			if ctx.Err() != nil {
				return
			}

			id := ExtractProductID(u)
			if id == "" {
				s.Logger.Debug("No product id in %s", u)
				continue
			}

			p, err := s.FetchProduct(ctx, id)
			if err != nil {
				errs++
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

		s.Logger.Info("Completed scraping. Success: %d, Errors: %d", count, errs)
	}
}

// FetchProduct loads the product card and, only when the card carries no
// price, the separate price document.
func (s *Scraper) FetchProduct(ctx context.Context, id string) (*models.ScrapedProduct, error) {
	client := s.Client()

	var card map[string]any
	if err := client.GetJSON(ctx, fmt.Sprintf(s.CardURL, id), &card); err != nil {
		return nil, fmt.Errorf("fetch product card: %w", err)
	}
	data := card
	if inner := scraper.AsMap(card["data"]); inner != nil {
		data = inner
	}

	if productName(data) == "" {
		return nil, fmt.Errorf("%w: no name", scraper.ErrIncomplete)
	}

	var priceDoc map[string]any
	if _, ok := cardPrice(data); !ok {
		if err := client.GetJSON(ctx, fmt.Sprintf(s.PriceURL, id), &priceDoc); err != nil {
			s.Logger.Debug("Price fallback failed for %s: %v", id, err)
			priceDoc = nil
		}
	}

	return s.normalize(id, data, priceDoc)
}

func (s *Scraper) normalize(id string, data, priceDoc map[string]any) (*models.ScrapedProduct, error) {
	name := productName(data)
	if name == "" {
		return nil, fmt.Errorf("%w: no name", scraper.ErrIncomplete)
	}

	price, ok := cardPrice(data)
	var original *float64
	if ok {
		original = scraper.OriginalPrice(priceField(data, "original"), price)
	} else if info := fallbackPriceInfo(priceDoc); info != nil {
		price, ok = scraper.PriceValue(info["current"])
		if ok {
			original = scraper.OriginalPrice(info["original"], price)
		}
	}
	if !ok {
		_, err := scraper.RequirePrice(priceField(data, "current"))
		return nil, err
	}

	productURL := scraper.AbsoluteURL(s.baseURL, scraper.FirstText(data, "href", "url", "productUrl"))
	if productURL == "" {
		productURL = s.baseURL + "/product/" + id
	}

	available := true
	if sell := scraper.AsMap(data["sellability"]); sell != nil {
		available = scraper.AnyAvailable(sell["isBuyableOnline"], sell["isBuyableInStore"])
	}

	return &models.ScrapedProduct{
		ExternalID:    id,
		Name:          name,
		URL:           productURL,
		Price:         price,
		OriginalPrice: original,
		Brand:         scraper.FirstText(data, "brand", "manufacturer"),
		Category:      category(data),
		ImageURL:      scraper.AbsoluteURL(s.baseURL, imageURL(data)),
		Description:   scraper.FirstText(data, "description", "shortDescription"),
		IsAvailable:   available,
	}, nil
}

func productName(data map[string]any) string {
	return scraper.FirstText(data, "name", "title")
}

// cardPrice reads price.current, which is either a number or the list
// [withVAT, withoutVAT].
func cardPrice(data map[string]any) (float64, bool) {
	return scraper.PriceValue(priceField(data, "current"))
}

func priceField(data map[string]any, key string) any {
	switch p := data["price"].(type) {
	case map[string]any:
		return p[key]
	case nil:
		return nil
	default:
		if key == "current" {
			return p
		}
	}
	return nil
}

func fallbackPriceInfo(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	if inner := scraper.AsMap(doc["data"]); inner != nil {
		doc = inner
	}
	if info := scraper.AsMap(doc["price"]); info != nil {
		return info
	}
	return doc
}

func category(data map[string]any) string {
	if tax := scraper.AsSlice(data["taxonomy"]); len(tax) > 0 {
		if c := scraper.Text(tax[0]); c != "" {
			return c
		}
	}
	return scraper.FirstText(data, "categoryName", "category")
}

func imageURL(data map[string]any) string {
	if u := scraper.FirstText(data, "imageUrl"); u != "" {
		return u
	}

	images := data["images"]
	if images == nil {
		images = data["image"]
	}
	switch img := images.(type) {
	case []any:
		if len(img) == 0 {
			return ""
		}
		if m := scraper.AsMap(img[0]); m != nil {
			return scraper.FirstText(m, "url", "src")
		}
		return scraper.Text(img[0])
	case map[string]any:
		return scraper.FirstText(img, "url", "src")
	case string:
		return img
	}
	return ""
}
