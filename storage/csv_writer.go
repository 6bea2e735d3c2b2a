package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"price-tracker/models"
)

// CSVWriter writes raw scraped products, as the adapters produced them,
// to a CSV file. It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)

	// Write header
	if err := w.Write([]string{
		"store", "external_id", "name", "price", "original_price", "brand",
		"category", "is_available", "url", "image_url", "scraped_at",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteProduct appends one row and flushes it.
func (c *CSVWriter) WriteProduct(storeName string, p *models.ScrapedProduct) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	original := ""
	if p.OriginalPrice != nil {
		original = formatPrice(*p.OriginalPrice)
	}

	row := []string{
		storeName,
		p.ExternalID,
		p.Name,
		formatPrice(p.Price),
		original,
		p.Brand,
		p.Category,
		strconv.FormatBool(p.IsAvailable),
		p.URL,
		p.ImageURL,
		time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("csv: write row: %w", err)
	}

	c.writer.Flush()
	return c.writer.Error()
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writer.Flush()
	return c.file.Close()
}
