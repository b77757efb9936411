package universe

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	"SectorPulse/internal/model"
)

// Load reads a ticker,name,sector CSV. Rows without a ticker are dropped and
// duplicate tickers keep their first occurrence.
func Load(path string) ([]model.Ticker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe %s: %w", path, err)
	}
	var rows []model.Ticker
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		return nil, fmt.Errorf("parse universe %s: %w", path, err)
	}
	return normalize(rows), nil
}

// Save writes tickers to path as CSV, creating the parent directory.
func Save(path string, tickers []model.Ticker) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create universe dir: %w", err)
		}
	}
	var buf bytes.Buffer
	if err := gocsv.Marshal(&tickers, &buf); err != nil {
		return fmt.Errorf("encode universe: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write universe: %w", err)
	}
	return os.Rename(tmp, path)
}

func normalize(rows []model.Ticker) []model.Ticker {
	seen := make(map[string]bool, len(rows))
	out := make([]model.Ticker, 0, len(rows))
	for _, r := range rows {
		r.Symbol = strings.TrimSpace(r.Symbol)
		r.Name = strings.TrimSpace(r.Name)
		r.Sector = strings.TrimSpace(r.Sector)
		if r.Symbol == "" || seen[r.Symbol] {
			continue
		}
		seen[r.Symbol] = true
		out = append(out, r)
	}
	return out
}
