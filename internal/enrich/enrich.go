package enrich

import (
	"math"
	"strings"
	"time"

	"quoteexport/internal/provider"
)

// Field names read and written on quote records.
const (
	FieldDataCom  = "data_com"
	FieldDataPag  = "data_pag"
	FieldInterval = "intervalo_dias"
)

// Layouts accepted for data_com and data_pag. Values without a zone are UTC.
var layouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"02/01/2006",
}

// Intervals returns records with intervalo_dias set to the whole days from
// data_com to data_pag, rounded down, wherever both dates parse. Other records
// come back untouched. The input slice and its records are not modified.
func Intervals(records []provider.Record) []provider.Record {
	out := make([]provider.Record, len(records))
	for i, r := range records {
		out[i] = Interval(r)
	}
	return out
}

// Interval enriches one record.
func Interval(r provider.Record) provider.Record {
	com, ok := dateField(r, FieldDataCom)
	if !ok {
		return r
	}
	pag, ok := dateField(r, FieldDataPag)
	if !ok {
		return r
	}
	days := int(math.Floor(pag.Sub(com).Hours() / 24))
	enriched, err := r.With(FieldInterval, days)
	if err != nil {
		return r
	}
	return enriched
}

func dateField(r provider.Record, key string) (time.Time, bool) {
	s, ok := r.String(key)
	if !ok {
		return time.Time{}, false
	}
	return ParseDate(s)
}

// ParseDate parses s with the first matching accepted layout.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
