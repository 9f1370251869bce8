package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// parsePrice reads an asking price written in either US ("89,500.00") or
// European ("89.500,00") style, with or without a currency symbol.
//
// When both separators appear the last one is the decimal point. A single
// separator is the decimal point when one or two digits follow it; with three
// digits it could be either, so the price is rejected. A repeated separator
// groups thousands.
func parsePrice(s string) (decimal.Decimal, error) {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		}

		return -1
	}, s)

	if strings.Trim(clean, ".,-") == "" {
		return decimal.Decimal{}, errors.New("no digits")
	}

	number, err := normalizeSeparators(clean)
	if err != nil {
		return decimal.Decimal{}, err
	}

	d, err := decimal.NewFromString(number)
	if err != nil {
		return decimal.Decimal{}, err
	}

	return d, nil
}

func normalizeSeparators(s string) (string, error) {
	dots, commas := strings.Count(s, "."), strings.Count(s, ",")

	switch {
	case dots == 0 && commas == 0:
		return s, nil
	case dots > 0 && commas > 0:
		return splitDecimal(s, strings.LastIndexAny(s, ".,"))
	}

	sep, n := ".", dots
	if commas > 0 {
		sep, n = ",", commas
	}

	if n > 1 {
		return stripGroups(s), nil
	}

	i := strings.Index(s, sep)
	if len(s)-i-1 == 3 {
		return "", fmt.Errorf("ambiguous separator in %q", s)
	}

	return splitDecimal(s, i)
}

// splitDecimal treats s[i] as the decimal point and every separator before
// it as a thousands separator.
func splitDecimal(s string, i int) (string, error) {
	whole, frac := s[:i], s[i+1:]

	if strings.ContainsRune(whole, rune(s[i])) {
		return "", fmt.Errorf("misplaced separator in %q", s)
	}

	if len(frac) < 1 || len(frac) > 2 || strings.ContainsAny(frac, ".,") {
		return "", fmt.Errorf("expected one or two decimals in %q", s)
	}

	whole = stripGroups(whole)
	if whole == "" || whole == "-" {
		whole += "0"
	}

	return whole + "." + frac, nil
}

func stripGroups(s string) string {
	return strings.NewReplacer(".", "", ",", "").Replace(s)
}
