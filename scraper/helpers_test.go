package scraper

import (
	"io"
	"time"

	"price-tracker/models"
	"price-tracker/utils"
)

func quietLogger() *utils.Logger {
	l := utils.NewLogger()
	l.SetOutput(io.Discard)
	return l
}

func testOptions() Options {
	return Options{
		Timeout:        2 * time.Second,
		UserAgent:      "test-agent",
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		BatchSize:      50,
		PageSize:       100,
	}
}

func testBase() *Base {
	store := &models.Store{ID: 1, Name: "Test Store", BaseURL: "https://shop.example"}
	return NewBase(store, testOptions(), quietLogger(), map[string]string{"Accept": "application/json"})
}
