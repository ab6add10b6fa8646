// Package payload builds PromptPay (EMVCo merchant-presented) QR payload strings.
package payload

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jafarshop/tablepos/pkg/errors"
)

// Tag ids used in the payload.
const (
	idPayloadFormat    = "00"
	idPOIMethod        = "01"
	idMerchantInfo     = "29"
	idTransactionCurr  = "53"
	idTransactionAmt   = "54"
	idCountryCode      = "58"
	idCRC              = "63"
	idMerchantAID      = "00"
	payloadFormatEMVCo = "01"
	poiMethodStatic    = "11"
	poiMethodDynamic   = "12"
	merchantAID        = "A000000677010111"
	countryCodeTH      = "TH"
	currencyTHB        = "764"
	phoneCountryPrefix = "66"
)

// TargetType classifies the merchant identifier.
type TargetType string

const (
	TargetPhone   TargetType = "01"
	TargetTaxID   TargetType = "02"
	TargetEWallet TargetType = "03"
)

// crcPrefix is the checksum tag and its fixed length, included in the checksummed data.
const crcPrefix = idCRC + "04"

// Encode builds the payload for target. A nil or non-positive amount yields a
// reusable code; a positive amount binds the code to that amount.
func Encode(target string, amount *float64) (string, error) {
	digits := sanitizeTarget(target)
	if digits == "" {
		return "", &errors.ErrValidation{
			Message: "payment target must contain at least one digit",
			Fields:  map[string]string{"target": target},
		}
	}
	if amount != nil && (math.IsNaN(*amount) || math.IsInf(*amount, 0)) {
		return "", &errors.ErrValidation{
			Message: "amount must be a finite number",
			Fields:  map[string]string{"amount": fmt.Sprint(*amount)},
		}
	}
	targetType := Classify(digits)

	withAmount := amount != nil && *amount > 0

	poi := poiMethodStatic
	if withAmount {
		poi = poiMethodDynamic
	}

	var b strings.Builder
	b.WriteString(field(idPayloadFormat, payloadFormatEMVCo))
	b.WriteString(field(idPOIMethod, poi))
	b.WriteString(field(idMerchantInfo,
		field(idMerchantAID, merchantAID)+field(string(targetType), formatTarget(digits, targetType))))
	b.WriteString(field(idCountryCode, countryCodeTH))
	b.WriteString(field(idTransactionCurr, currencyTHB))
	if withAmount {
		b.WriteString(field(idTransactionAmt, formatAmount(*amount)))
	}
	b.WriteString(crcPrefix)

	data := b.String()
	return data + fmt.Sprintf("%04X", Checksum(data)), nil
}

// Classify returns the target type for an already sanitized digit string.
func Classify(digits string) TargetType {
	switch {
	case len(digits) >= 15:
		return TargetEWallet
	case len(digits) >= 13:
		return TargetTaxID
	default:
		return TargetPhone
	}
}

// Verify reports whether the trailing checksum of payload matches its content.
func Verify(payload string) bool {
	if len(payload) < len(crcPrefix)+4 {
		return false
	}
	body, sum := payload[:len(payload)-4], payload[len(payload)-4:]
	if !strings.HasSuffix(body, crcPrefix) {
		return false
	}
	return fmt.Sprintf("%04X", Checksum(body)) == sum
}

func field(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func sanitizeTarget(target string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, target)
}

// formatTarget converts a local phone number to 66XXXXXXXXX, zero-padded to 13 chars.
func formatTarget(digits string, targetType TargetType) string {
	if targetType != TargetPhone {
		return digits
	}
	international := digits
	if strings.HasPrefix(international, "0") {
		international = phoneCountryPrefix + international[1:]
	}
	padded := strings.Repeat("0", 13) + international
	return padded[len(padded)-13:]
}

func formatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}
