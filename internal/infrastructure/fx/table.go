// Package fx converts amounts between currencies using a rate table quoted
// against a single base currency.
package fx

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	"famledger/internal/shared/apperror"
	"famledger/internal/shared/dateutil"
	"famledger/internal/shared/money"
)

// Table holds units of each currency per one unit of the base currency.
// It is safe for concurrent use and can be reloaded in place.
type Table struct {
	mu    sync.RWMutex
	base  string
	rates map[string]decimal.Decimal
	asOf  time.Time
}

// NewTable creates a table from rates quoted against base.
func NewTable(base string, rates map[string]decimal.Decimal) (*Table, error) {
	t := &Table{}
	if err := t.set(base, rates, time.Time{}); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseRates converts textual rates, as found in configuration, to decimals.
func ParseRates(raw map[string]string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal, len(raw))
	for code, value := range raw {
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid rate for %s: %w", code, err)
		}
		rates[strings.ToUpper(code)] = rate
	}
	return rates, nil
}

func (t *Table) set(base string, rates map[string]decimal.Decimal, asOf time.Time) error {
	base = strings.ToUpper(base)
	if len(base) != 3 {
		return fmt.Errorf("invalid base currency %q", base)
	}
	normalized := make(map[string]decimal.Decimal, len(rates)+1)
	for code, rate := range rates {
		if !rate.IsPositive() {
			return fmt.Errorf("rate for %s must be positive", code)
		}
		normalized[strings.ToUpper(code)] = rate
	}
	normalized[base] = decimal.NewFromInt(1)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.base = base
	t.rates = normalized
	t.asOf = asOf
	return nil
}

// AsOf returns the date of the loaded rates, zero for static tables.
func (t *Table) AsOf() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.asOf
}

// Rate returns how many units of to one unit of from buys, rounded to the
// periodic-rate precision.
func (t *Table) Rate(from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	fromRate, okFrom := t.rates[from]
	toRate, okTo := t.rates[to]
	if !okFrom || !okTo {
		return decimal.Zero, apperror.Validationf("no exchange rate from %s to %s", from, to)
	}
	return toRate.DivRound(fromRate, money.RateScale), nil
}

// Convert implements the ledger's converter.
func (t *Table) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	rate, err := t.Rate(from, to)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return money.Round4(amount.Mul(rate)), rate, nil
}

// LoadXMLFile replaces the table with the rates of an ECB-style reference
// rate file.
func (t *Table) LoadXMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read rate file: %w", err)
	}
	return t.LoadXML(data)
}

// LoadXML parses an ECB-style document:
//
//	<Cube><Cube time="2025-01-02"><Cube currency="USD" rate="1.0321"/></Cube></Cube>
//
// The base currency is taken from the root's base attribute, EUR if absent.
func (t *Table) LoadXML(data []byte) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return fmt.Errorf("failed to parse XML: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return fmt.Errorf("empty rate document")
	}
	base := root.SelectAttrValue("base", "EUR")

	elements := doc.FindElements("//Cube[@currency]")
	if len(elements) == 0 {
		return fmt.Errorf("no rate data found in XML")
	}

	rates := make(map[string]decimal.Decimal, len(elements))
	for _, el := range elements {
		code := el.SelectAttrValue("currency", "")
		rate, err := decimal.NewFromString(el.SelectAttrValue("rate", ""))
		if err != nil {
			return fmt.Errorf("failed to parse rate for %s: %w", code, err)
		}
		rates[code] = rate
	}

	var asOf time.Time
	if dated := doc.FindElement("//Cube[@time]"); dated != nil {
		if d, err := dateutil.Parse(dated.SelectAttrValue("time", "")); err == nil {
			asOf = d
		}
	}

	return t.set(base, rates, asOf)
}
