package scraper

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"

	"price-tracker/utils"
)

// SitemapResolver expands XML sitemaps and sitemap indexes into leaf URLs.
type SitemapResolver struct {
	client *Client
	logger *utils.Logger
}

// NewSitemapResolver creates a resolver fetching through client.
func NewSitemapResolver(client *Client, logger *utils.Logger) *SitemapResolver {
	return &SitemapResolver{client: client, logger: logger}
}

// Resolve returns the leaf URLs of the sitemap at sitemapURL in document
// order. An index is expanded recursively, child by child. When filter is
// non-empty only URLs containing it are kept. A sitemap that cannot be
// fetched or parsed contributes no URLs; its siblings are still resolved.
func (r *SitemapResolver) Resolve(ctx context.Context, sitemapURL, filter string) []string {
	return r.resolve(ctx, sitemapURL, filter, make(map[string]struct{}))
}

func (r *SitemapResolver) resolve(ctx context.Context, sitemapURL, filter string, visited map[string]struct{}) []string {
	if _, ok := visited[sitemapURL]; ok {
		r.logger.Warn("[sitemap] Skipping already visited sitemap %s", sitemapURL)
		return nil
	}
	visited[sitemapURL] = struct{}{}

	if ctx.Err() != nil {
		return nil
	}

	doc, err := r.fetch(ctx, sitemapURL)
	if err != nil {
		r.logger.Error("[sitemap] Error fetching sitemap %s: %v", sitemapURL, err)
		return nil
	}

	var urls []string
	if children := xmlquery.Find(doc, "//sitemap"); len(children) > 0 {
		for _, child := range children {
			loc := xmlquery.FindOne(child, "loc")
			if loc == nil {
				continue
			}
			childURL := strings.TrimSpace(loc.InnerText())
			if childURL == "" {
				continue
			}
			urls = append(urls, r.resolve(ctx, childURL, filter, visited)...)
		}
	} else {
		for _, loc := range xmlquery.Find(doc, "//url/loc") {
			u := strings.TrimSpace(loc.InnerText())
			if u == "" {
				continue
			}
			if filter == "" || strings.Contains(u, filter) {
				urls = append(urls, u)
			}
		}
	}

	r.logger.Info("[sitemap] Found %d URLs from %s", len(urls), sitemapURL)
	return urls
}

func (r *SitemapResolver) fetch(ctx context.Context, sitemapURL string) (*xmlquery.Node, error) {
	body, err := r.client.Get(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	var reader io.Reader = bytes.NewReader(body)
	// .xml.gz sitemaps arrive as raw gzip bytes
	if len(body) > 2 && body[0] == 0x1f && body[1] == 0x8b {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return xmlquery.Parse(reader)
}
