package sector

import (
	"sort"
	"strings"

	"SectorPulse/internal/model"
)

// Bucket is a macro sector category scored by the sentiment provider.
type Bucket string

// Macro buckets. Names match the keys the sentiment prompt asks for.
const (
	Foods          Bucket = "食品"
	Construction   Bucket = "建設・不動産"
	Materials      Bucket = "素材・化学"
	Pharma         Bucket = "医薬品"
	Energy         Bucket = "エネルギー"
	MachinerySteel Bucket = "機械・鉄鋼"
	Electronics    Bucket = "電気・精密"
	Autos          Bucket = "自動車・輸送機"
	RetailServices Bucket = "小売・サービス"
	InfoComm       Bucket = "情報・通信"
	Infrastructure Bucket = "インフラ・運輸"
	Trading        Bucket = "商社"
	Financials     Bucket = "銀行・金融"

	// Overall is the whole-market bucket and the fallback for unknown labels.
	Overall Bucket = "全体"
)

// defaultTable maps the 33 exchange industry classifications to buckets.
var defaultTable = map[string]Bucket{
	"Fishery, Agriculture and Forestry": Foods,
	"Foods":                             Foods,
	"Construction":                      Construction,
	"Real Estate":                       Construction,
	"Textiles and Apparels":             Materials,
	"Chemicals":                         Materials,
	"Pharmaceutical":                    Pharma,
	"Oil and Coal Products":             Energy,
	"Mining":                            Energy,
	"Rubber Products":                   Materials,
	"Glass and Ceramics Products":       Materials,
	"Pulp and Paper":                    Materials,
	"Iron and Steel":                    MachinerySteel,
	"Nonferrous Metals":                 MachinerySteel,
	"Metal Products":                    MachinerySteel,
	"Machinery":                         MachinerySteel,
	"Electric Appliances":               Electronics,
	"Precision Instruments":             Electronics,
	"Transportation Equipment":          Autos,
	"Other Products":                    RetailServices,
	"Information & Communication":       InfoComm,
	"Services":                          RetailServices,
	"Electric Power and Gas":            Infrastructure,
	"Land Transportation":               Infrastructure,
	"Marine Transportation":             Infrastructure,
	"Air Transportation":                Infrastructure,
	"Warehousing and Harbor Transportation Services": Infrastructure,
	"Wholesale Trade":                    Trading,
	"Retail Trade":                       RetailServices,
	"Banks":                              Financials,
	"Securities and Commodities Futures": Financials,
	"Insurance":                          Financials,
	"Other Financing Business":           Financials,
}

// Mapper resolves raw industry labels to macro buckets. It is immutable after
// construction and safe for concurrent use.
type Mapper struct {
	table map[string]Bucket
}

// NewMapper builds a mapper from the default table with overrides applied.
// Override values name a bucket directly.
func NewMapper(overrides map[string]string) *Mapper {
	table := make(map[string]Bucket, len(defaultTable)+len(overrides))
	for k, v := range defaultTable {
		table[k] = v
	}
	for k, v := range overrides {
		table[strings.TrimSpace(k)] = Bucket(v)
	}
	return &Mapper{table: table}
}

// Default returns a mapper over the built-in table.
func Default() *Mapper { return NewMapper(nil) }

// ResolveSector maps a raw industry label to its bucket, or Overall.
func (m *Mapper) ResolveSector(rawIndustry string) Bucket {
	if b, ok := m.table[strings.TrimSpace(rawIndustry)]; ok {
		return b
	}
	return Overall
}

// Buckets returns the distinct buckets of the table, sorted, without Overall.
func (m *Mapper) Buckets() []string {
	seen := make(map[Bucket]struct{})
	for _, b := range m.table {
		if b != Overall {
			seen[b] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for b := range seen {
		out = append(out, string(b))
	}
	sort.Strings(out)
	return out
}

// LookupScore returns the bucket's score, falling back to the overall score
// and then to 0.
func LookupScore(bucket Bucket, s *model.MacroSentiment) int {
	if s == nil {
		return 0
	}
	if v, ok := s.SectorScores[string(bucket)]; ok {
		return v
	}
	if s.HasOverall {
		return s.OverallScore
	}
	return 0
}
