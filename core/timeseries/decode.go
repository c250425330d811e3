package timeseries

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// UnmarshalJSON decodes a monthly record leniently: missing, null or
// malformed fields become zero instead of failing the whole series.
func (r *MonthlyRecord) UnmarshalJSON(b []byte) error {
	var w struct {
		Year  json.RawMessage `json:"ano"`
		Month json.RawMessage `json:"mes"`
		Total json.RawMessage `json:"total_gasto"`
		Count json.RawMessage `json:"qtd_despesas"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = MonthlyRecord{
		Year:        intField(w.Year),
		Month:       intField(w.Month),
		TotalAmount: decimalField(w.Total),
		Count:       intField(w.Count),
	}
	return nil
}

func rawText(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

func intField(raw json.RawMessage) int {
	s := rawText(raw)
	if s == "" || s == "null" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(f)
}

func decimalField(raw json.RawMessage) decimal.Decimal {
	s := rawText(raw)
	if s == "" || s == "null" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
