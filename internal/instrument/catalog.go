// Package instrument loads contract metadata (multiplier, commission rate,
// margin, tick size) from a TOML file into an immutable Catalog that is built
// once at startup and passed by reference to the engine.
package instrument

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// contractRecord is the on-disk TOML schema, one table per symbol:
//
//	[ES]
//	conId = 495512563
//	symbol = "ES"
//	multiplier = "50"
//	commission = 3.5
//	initMargin = 12000.0
//	minTick = 0.25
//	filename = "ES_cc.csv"
type contractRecord struct {
	ConID        int64   `toml:"conId"`
	Symbol       string  `toml:"symbol"`
	TradingClass string  `toml:"tradingClass"`
	SecType      string  `toml:"secType"`
	Exchange     string  `toml:"exchange"`
	Currency     string  `toml:"currency"`
	Multiplier   any     `toml:"multiplier"`
	Commission   float64 `toml:"commission"`
	InitMargin   float64 `toml:"initMargin"`
	MinTick      float64 `toml:"minTick"`
	LongName     string  `toml:"longName"`
	TimeZoneID   string  `toml:"timeZoneId"`
	Filename     string  `toml:"filename"`
}

// Catalog is a read-only symbol -> Instrument index.
type Catalog struct {
	instruments map[string]domain.Instrument
}

// New builds a Catalog from already-constructed instruments. Symbols are
// matched case-insensitively.
func New(instruments ...domain.Instrument) (*Catalog, error) {
	c := &Catalog{instruments: make(map[string]domain.Instrument, len(instruments))}
	for _, inst := range instruments {
		if err := validate(inst); err != nil {
			return nil, err
		}
		key := strings.ToUpper(inst.Symbol)
		if _, dup := c.instruments[key]; dup {
			return nil, fmt.Errorf("duplicate instrument %q", inst.Symbol)
		}
		c.instruments[key] = inst
	}
	return c, nil
}

// LoadFile decodes a contracts TOML file. Relative data file names are
// resolved against the directory holding the TOML file.
func LoadFile(path string) (*Catalog, error) {
	var raw map[string]contractRecord
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	instruments := make([]domain.Instrument, 0, len(raw))
	for key, r := range raw {
		inst, err := r.toInstrument(key)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", key, err)
		}
		if inst.DataFile != "" && !filepath.IsAbs(inst.DataFile) {
			inst.DataFile = filepath.Join(dir, inst.DataFile)
		}
		instruments = append(instruments, inst)
	}
	return New(instruments...)
}

// Lookup returns the metadata for symbol or an error wrapping
// domain.ErrUnknownInstrument.
func (c *Catalog) Lookup(symbol string) (domain.Instrument, error) {
	inst, ok := c.instruments[strings.ToUpper(symbol)]
	if !ok {
		return domain.Instrument{}, fmt.Errorf("%w: %q", domain.ErrUnknownInstrument, symbol)
	}
	return inst, nil
}

// Symbols returns all known symbols, sorted.
func (c *Catalog) Symbols() []string {
	out := make([]string, 0, len(c.instruments))
	for _, inst := range c.instruments {
		out = append(out, inst.Symbol)
	}
	sort.Strings(out)
	return out
}

func (r contractRecord) toInstrument(key string) (domain.Instrument, error) {
	symbol := r.Symbol
	if symbol == "" {
		symbol = key
	}
	mult, err := parseMultiplier(r.Multiplier)
	if err != nil {
		return domain.Instrument{}, err
	}
	return domain.Instrument{
		Symbol:       symbol,
		ConID:        r.ConID,
		SecType:      r.SecType,
		Exchange:     r.Exchange,
		Currency:     r.Currency,
		TradingClass: r.TradingClass,
		LongName:     r.LongName,
		TimeZone:     r.TimeZoneID,
		Multiplier:   mult,
		Commission:   decimal.NewFromFloat(r.Commission),
		InitMargin:   decimal.NewFromFloat(r.InitMargin),
		MinTick:      decimal.NewFromFloat(r.MinTick),
		DataFile:     r.Filename,
	}, nil
}

// parseMultiplier accepts the multiplier as a TOML string ("50"), integer or
// float. A missing multiplier defaults to 1.
func parseMultiplier(v any) (decimal.Decimal, error) {
	switch m := v.(type) {
	case nil:
		return decimal.NewFromInt(1), nil
	case int64:
		return decimal.NewFromInt(m), nil
	case float64:
		return decimal.NewFromFloat(m), nil
	case string:
		if m == "" {
			return decimal.NewFromInt(1), nil
		}
		v, err := decimal.NewFromString(strings.TrimSpace(m))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("parsing multiplier %q: %w", m, err)
		}
		return v, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported multiplier type %T", v)
	}
}

func validate(inst domain.Instrument) error {
	if inst.Symbol == "" {
		return fmt.Errorf("instrument without symbol")
	}
	if !inst.Multiplier.IsPositive() {
		return fmt.Errorf("instrument %s: multiplier must be positive", inst.Symbol)
	}
	if inst.Commission.IsNegative() {
		return fmt.Errorf("instrument %s: negative commission", inst.Symbol)
	}
	if inst.InitMargin.IsNegative() {
		return fmt.Errorf("instrument %s: negative margin", inst.Symbol)
	}
	return nil
}
