package datasource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yourusername/trading-bot/internal/models"
)

var csvHeader = []string{"symbol", "date", "open", "high", "low", "close", "volume"}

// LoadCSVFile reads daily bars from a CSV file into a MemoryProvider
func LoadCSVFile(path string) (*MemoryProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()
	return LoadCSV(f)
}

// LoadCSV reads rows of symbol,date,open,high,low,close,volume. The first
// row must be the header. Dates use the 2006-01-02 layout.
func LoadCSV(r io.Reader) (*MemoryProvider, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, NewDataSourceError("csv", ErrCodeInvalidData, "empty price file", nil)
		}
		return nil, NewDataSourceError("csv", ErrCodeInvalidData, "failed to read header", err)
	}
	for i, name := range csvHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), name) {
			return nil, NewDataSourceError("csv", ErrCodeInvalidData, fmt.Sprintf("unexpected column %q, want %q", header[i], name), nil)
		}
	}

	series := make(map[models.TradingSymbol][]models.PricePoint)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, NewDataSourceError("csv", ErrCodeInvalidData, fmt.Sprintf("line %d", line), err)
		}
		symbol, point, err := parseRecord(record)
		if err != nil {
			return nil, NewDataSourceError("csv", ErrCodeInvalidData, fmt.Sprintf("line %d", line), err)
		}
		if violations := ValidatePricePoint(point); len(violations) > 0 {
			return nil, validationError("csv", symbol, point, violations)
		}
		series[symbol] = append(series[symbol], point)
	}

	return NewMemoryProvider(series), nil
}

func parseRecord(record []string) (models.TradingSymbol, models.PricePoint, error) {
	symbol := models.TradingSymbol(strings.TrimSpace(record[0]))
	if symbol == "" {
		return "", models.PricePoint{}, errors.New("empty symbol")
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(record[1]))
	if err != nil {
		return "", models.PricePoint{}, fmt.Errorf("invalid date: %w", err)
	}

	values := make([]decimal.Decimal, 5)
	for i := range values {
		v, err := decimal.NewFromString(strings.TrimSpace(record[i+2]))
		if err != nil {
			return "", models.PricePoint{}, fmt.Errorf("invalid %s: %w", csvHeader[i+2], err)
		}
		values[i] = v
	}

	return symbol, models.PricePoint{
		Date:   models.Day(date),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}
