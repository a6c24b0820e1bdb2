package khqr

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EMVCo tag assignments used by KHQR merchant-presented payloads.
const (
	tagPayloadFormat       = "00"
	tagPointOfInitiation   = "01"
	tagMerchantAccountInfo = "29"
	tagMerchantCategory    = "52"
	tagCurrency            = "53"
	tagAmount              = "54"
	tagCountryCode         = "58"
	tagMerchantName        = "59"
	tagMerchantCity        = "60"
	tagAdditionalData      = "62"
	tagCRC                 = "63"

	subTagSchemeGUID = "00"
	subTagAccountID  = "01"
	subTagBillNumber = "01"

	payloadFormatValue = "01"
	// "12" marks a dynamic single-use QR.
	pointOfInitiationValue = "12"
	merchantCategoryValue  = "5999"
	countryCodeValue       = "KH"
)

// ReferenceLen is how many characters of the cleaned order id end up in
// the additional-data bill number and as the gateway tran id.
const ReferenceLen = 20

var (
	ErrInvalidAmount  = errors.New("khqr: amount must be non-negative with at most 2 fraction digits")
	ErrEmptyOrderID   = errors.New("khqr: order id is empty")
	ErrEmptyAccountID = errors.New("khqr: merchant account id is empty")
)

// PaymentRequest carries everything needed to assemble one QR payload. It is
// rebuilt from the order on every request and never persisted, so two
// regenerations can never disagree with the order they came from.
type PaymentRequest struct {
	OrderID    string
	Amount     decimal.Decimal
	Currency   string // numeric ISO 4217, e.g. "840" for USD
	SchemeGUID string // payment-system GUID inside tag 29, e.g. "bakong"
	AccountID  string // merchant bank/wallet alias
	Name       string // merchant name
	City       string
	ExpiresAt  time.Time
}

// Payload is a fully assembled KHQR string plus the handles used to look the
// payment up later.
type Payload struct {
	// Raw is the bit-exact wire artifact, trailing CRC field included.
	Raw string

	// Checksum is the 4 hex digit CRC at the end of Raw.
	Checksum string

	// ReferenceHash is the md5 of Raw, used as the gateway lookup key.
	ReferenceHash string

	// BillNumber is the truncated order reference embedded in tag 62.
	BillNumber string

	ExpiresAt time.Time
}

// Reference derives the bill number / gateway tran id from an order id:
// dashes stripped, first 20 characters. Short ids pass through whole.
func Reference(orderID string) string {
	cleaned := strings.ReplaceAll(orderID, "-", "")
	if len(cleaned) > ReferenceLen {
		return cleaned[:ReferenceLen]
	}
	return cleaned
}

// merchantAccountInfo builds the nested value of tag 29: the payment-system
// GUID under sub-tag 00 and the merchant account id under sub-tag 01.
func merchantAccountInfo(schemeGUID, accountID string) (string, error) {
	guid, err := encodeField(subTagSchemeGUID, schemeGUID)
	if err != nil {
		return "", err
	}
	account, err := encodeField(subTagAccountID, accountID)
	if err != nil {
		return "", err
	}
	return guid + account, nil
}

// formatAmount renders the amount with exactly two fraction digits. Amounts
// carrying sub-cent precision are rejected rather than silently rounded.
func formatAmount(amount decimal.Decimal) (string, error) {
	if amount.IsNegative() || !amount.Equal(amount.Round(2)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return amount.StringFixed(2), nil
}

// Assemble produces the full ordered KHQR payload for req.
//
// The field order is fixed; scanners rely on it. The trailing CRC field is
// self-referential per the EMVCo convention: the checksum input ends with the
// literal "6304" (the CRC field's own tag and length) but not its value.
func Assemble(req *PaymentRequest) (*Payload, error) {
	if req.OrderID == "" {
		return nil, ErrEmptyOrderID
	}
	if req.AccountID == "" {
		return nil, ErrEmptyAccountID
	}

	amount, err := formatAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	accountInfo, err := merchantAccountInfo(req.SchemeGUID, req.AccountID)
	if err != nil {
		return nil, fmt.Errorf("khqr: merchant account info: %w", err)
	}

	billNumber := Reference(req.OrderID)
	additionalData, err := encodeField(subTagBillNumber, billNumber)
	if err != nil {
		return nil, fmt.Errorf("khqr: additional data: %w", err)
	}

	fields := []struct {
		tag   string
		value string
	}{
		{tagPayloadFormat, payloadFormatValue},
		{tagPointOfInitiation, pointOfInitiationValue},
		{tagMerchantAccountInfo, accountInfo},
		{tagMerchantCategory, merchantCategoryValue},
		{tagCurrency, req.Currency},
		{tagAmount, amount},
		{tagCountryCode, countryCodeValue},
		{tagMerchantName, truncateValue(req.Name)},
		{tagMerchantCity, req.City},
		{tagAdditionalData, additionalData},
	}

	var sb strings.Builder
	for _, f := range fields {
		encoded, err := encodeField(f.tag, f.value)
		if err != nil {
			return nil, fmt.Errorf("khqr: assemble tag %s: %w", f.tag, err)
		}
		sb.WriteString(encoded)
	}

	sb.WriteString(tagCRC + "04")
	crc := Checksum([]byte(sb.String()))
	sb.WriteString(crc)

	raw := sb.String()
	digest := md5.Sum([]byte(raw))

	return &Payload{
		Raw:           raw,
		Checksum:      crc,
		ReferenceHash: hex.EncodeToString(digest[:]),
		BillNumber:    billNumber,
		ExpiresAt:     req.ExpiresAt,
	}, nil
}
