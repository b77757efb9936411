package universe

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/extrame/xls"
	"go.uber.org/zap"

	"SectorPulse/internal/logging"
	"SectorPulse/internal/model"
)

// DefaultListingURL is the exchange page that links the listed issues file.
const DefaultListingURL = "https://www.jpx.co.jp/english/markets/statistics-equities/misc/01.html"

// JPXScraper downloads the TSE listed issues workbook and extracts the Prime
// market universe.
type JPXScraper struct {
	PageURL string
	Client  *http.Client
	logger  *zap.Logger
}

// NewJPXScraper creates a scraper for the default listing page.
func NewJPXScraper(logger *zap.Logger) *JPXScraper {
	return &JPXScraper{
		PageURL: DefaultListingURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logging.OrNop(logger),
	}
}

// Fetch returns the Prime market tickers sorted as they appear in the file.
func (s *JPXScraper) Fetch(ctx context.Context) ([]model.Ticker, error) {
	page, err := s.get(ctx, s.PageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing page: %w", err)
	}
	link, err := findListingLink(page, s.PageURL)
	if err != nil {
		return nil, err
	}
	s.logger.Info("downloading listed issues", zap.String("url", link))

	data, err := s.get(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("download listed issues: %w", err)
	}
	rows, err := readWorkbook(data)
	if err != nil {
		return nil, err
	}
	tickers, err := ParseListing(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("parsed prime listings", zap.Int("count", len(tickers)))
	return tickers, nil
}

func (s *JPXScraper) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// findListingLink locates the data_e.xls (or data_j.xls) href on the page,
// falling back to the link text, and resolves it against pageURL.
func findListingLink(page []byte, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse listing page: %w", err)
	}
	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h, _ := a.Attr("href")
		if strings.Contains(h, "data_e.xls") || strings.Contains(h, "data_j.xls") {
			href = h
			return false
		}
		return true
	})
	if href == "" {
		doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if strings.Contains(a.Text(), "List of TSE-listed Issues") {
				href, _ = a.Attr("href")
				return false
			}
			return true
		})
	}
	if href == "" {
		return "", fmt.Errorf("listed issues link not found on %s", pageURL)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func readWorkbook(data []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		cells := make([]string, row.LastCol())
		for j := range cells {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// listingColumns are the column indexes resolved from the header row.
type listingColumns struct {
	code, name, market, sector int
}

// ParseListing finds the header within the first five rows, keeps Prime
// market rows and formats tickers as the zero padded code plus ".T".
func ParseListing(rows [][]string) ([]model.Ticker, error) {
	header := -1
	for i := 0; i < len(rows) && i < 5; i++ {
		for _, c := range rows[i] {
			if strings.Contains(c, "Code") || strings.Contains(c, "コード") {
				header = i
				break
			}
		}
		if header >= 0 {
			break
		}
	}
	if header < 0 {
		return nil, fmt.Errorf("listing header row not found")
	}
	cols, err := resolveColumns(rows[header])
	if err != nil {
		return nil, err
	}

	var out []model.Ticker
	for _, row := range rows[header+1:] {
		market := cell(row, cols.market)
		if !strings.Contains(market, "Prime") && !strings.Contains(market, "プライム") {
			continue
		}
		code := normalizeCode(cell(row, cols.code))
		if code == "" {
			continue
		}
		out = append(out, model.Ticker{
			Symbol: code + ".T",
			Name:   cell(row, cols.name),
			Sector: cell(row, cols.sector),
		})
	}
	return normalize(out), nil
}

func resolveColumns(header []string) (listingColumns, error) {
	cols := listingColumns{code: -1, name: -1, market: -1, sector: -1}
	for i, h := range header {
		switch {
		case cols.code < 0 && ((strings.Contains(h, "Code") && strings.Contains(h, "Local")) || h == "コード"):
			cols.code = i
		case cols.name < 0 && (strings.Contains(h, "Name") && !strings.Contains(h, "Sector") || h == "銘柄名"):
			cols.name = i
		case cols.market < 0 && (strings.Contains(h, "Section") || h == "市場・商品区分"):
			cols.market = i
		case cols.sector < 0 && (strings.Contains(h, "33 Sector") || strings.Contains(h, "33業種区分")) &&
			!strings.Contains(h, "Code") && !strings.Contains(h, "コード"):
			cols.sector = i
		}
	}
	if cols.code < 0 || cols.name < 0 || cols.market < 0 || cols.sector < 0 {
		return cols, fmt.Errorf("listing columns not identified: %v", header)
	}
	return cols, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// normalizeCode turns "7203", "7203.0" or "130A" into a 4 character code.
func normalizeCode(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	if s == "" {
		return ""
	}
	if n, err := strconv.Atoi(s); err == nil {
		return fmt.Sprintf("%04d", n)
	}
	return s
}
