package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"phasetrader/internal/model"
	sqlitestore "phasetrader/internal/store/sqlite"
)

// importBars loads "ts,open,high,low,close,volume" rows into the bars table.
// ts is unix seconds or RFC 3339; a header row is skipped.
func importBars(path, symbol, dbPath string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	bars, err := parseBars(f, symbol)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: dbPath})
	if err != nil {
		return 0, err
	}
	defer w.Close()
	if err := w.WriteBars(bars); err != nil {
		return 0, err
	}
	return len(bars), nil
}

func parseBars(r io.Reader, symbol string) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6
	cr.TrimLeadingSpace = true

	var bars []model.Bar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return bars, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(rec[0], "ts") {
			continue
		}

		ts, err := parseTS(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var vals [5]decimal.Decimal
		for i := range vals {
			if vals[i], err = decimal.NewFromString(rec[i+1]); err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+2, err)
			}
		}
		bars = append(bars, model.Bar{
			Symbol: symbol,
			TS:     ts,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
}

func parseTS(s string) (time.Time, error) {
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
