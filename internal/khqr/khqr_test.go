package khqr

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRequest() *PaymentRequest {
	return &PaymentRequest{
		OrderID:    "a3d8f0e2-4b7c-4d9e-8f10-123456789abc",
		Amount:     decimal.RequireFromString("12.50"),
		Currency:   "840",
		SchemeGUID: "bakong",
		AccountID:  "2819314",
		Name:       "GenZStore",
		City:       "Phnom Penh",
		ExpiresAt:  time.Now().Add(10 * time.Minute),
	}
}

func TestAssemble_GoldenPayload(t *testing.T) {
	p, err := Assemble(testRequest())
	require.NoError(t, err)

	const want = "00020101021229210006bakong01072819314520459995303840" +
		"540512.505802KH5909GenZStore6010Phnom Penh" +
		"62240120a3d8f0e24b7c4d9e8f1063046946"
	assert.Equal(t, want, p.Raw)
	assert.Equal(t, "6946", p.Checksum)
	assert.Equal(t, "a3d8f0e24b7c4d9e8f10", p.BillNumber)
	assert.Equal(t, "ddc93ce5519cbbef649c29201c934b06", p.ReferenceHash)
}

func TestAssemble_WireFragments(t *testing.T) {
	p, err := Assemble(testRequest())
	require.NoError(t, err)

	assert.Contains(t, p.Raw, "5303840")
	assert.Contains(t, p.Raw, "12.50")
	assert.Contains(t, p.Raw, "5802KH")
	assert.Regexp(t, `6304[0-9A-F]{4}$`, p.Raw)
}

func TestAssemble_ChecksumCommitsToOwnHeader(t *testing.T) {
	p, err := Assemble(testRequest())
	require.NoError(t, err)

	// The CRC input is the payload up to and including "6304" but not the
	// checksum value itself.
	body := p.Raw[:len(p.Raw)-4]
	require.True(t, strings.HasSuffix(body, "6304"))
	assert.Equal(t, p.Checksum, Checksum([]byte(body)))
	assert.NoError(t, VerifyChecksum(p.Raw))
}

func TestAssemble_RoundTrip(t *testing.T) {
	p, err := Assemble(testRequest())
	require.NoError(t, err)

	fields, err := Parse(p.Raw)
	require.NoError(t, err)

	tags := make([]string, len(fields))
	for i, f := range fields {
		tags[i] = f.Tag
	}
	assert.Equal(t, []string{"00", "01", "29", "52", "53", "54", "58", "59", "60", "62", "63"}, tags)

	reencoded, err := Encode(fields)
	require.NoError(t, err)
	assert.Equal(t, p.Raw, reencoded)

	// The nested merchant account info decodes with the same primitive.
	sub, err := Parse(fields[2].Value)
	require.NoError(t, err)
	require.Len(t, sub, 2)
	assert.Equal(t, "bakong", sub[0].Value)
	assert.Equal(t, "2819314", sub[1].Value)
}

func TestAssemble_TotalLengthConsistent(t *testing.T) {
	p, err := Assemble(testRequest())
	require.NoError(t, err)

	fields, err := Parse(p.Raw)
	require.NoError(t, err)

	total := 0
	for _, f := range fields {
		total += 4 + len(f.Value)
	}
	assert.Equal(t, len(p.Raw), total)
}

func TestAssemble_AmountFormatting(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   string
		ok     bool
	}{
		{"two decimals kept", "12.50", "540512.50", true},
		{"integer padded", "7", "54047.00", true},
		{"one decimal padded", "0.5", "54040.50", true},
		{"zero", "0", "54040.00", true},
		{"trailing zero precision kept", "1.000", "54041.00", true},
		{"sub-cent precision rejected", "1.005", "", false},
		{"negative rejected", "-3.00", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest()
			req.Amount = decimal.RequireFromString(tt.amount)
			p, err := Assemble(req)
			if !tt.ok {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAmount)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, p.Raw, tt.want)
		})
	}
}

func TestAssemble_OversizedCityFails(t *testing.T) {
	req := testRequest()
	req.City = strings.Repeat("x", 120)

	_, err := Assemble(req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFieldTooLong)
}

func TestAssemble_LongMerchantNameTruncates(t *testing.T) {
	req := testRequest()
	req.Name = strings.Repeat("n", 150)

	p, err := Assemble(req)
	require.NoError(t, err)
	assert.Contains(t, p.Raw, "5999"+strings.Repeat("n", 99))
	assert.NoError(t, VerifyChecksum(p.Raw))
}

func TestAssemble_MissingInputs(t *testing.T) {
	req := testRequest()
	req.OrderID = ""
	_, err := Assemble(req)
	assert.ErrorIs(t, err, ErrEmptyOrderID)

	req = testRequest()
	req.AccountID = ""
	_, err = Assemble(req)
	assert.ErrorIs(t, err, ErrEmptyAccountID)
}

func TestReference(t *testing.T) {
	assert.Equal(t, "a3d8f0e24b7c4d9e8f10", Reference("a3d8f0e2-4b7c-4d9e-8f10-123456789abc"))
	assert.Equal(t, "shortid", Reference("short-id"))
	assert.Len(t, Reference("ffffffff-ffff-ffff-ffff-ffffffffffff"), 20)
}

func TestVerifyChecksum_DetectsTampering(t *testing.T) {
	p, err := Assemble(testRequest())
	require.NoError(t, err)

	// Flip the amount: any corruption must surface as a checksum mismatch.
	tampered := strings.Replace(p.Raw, "12.50", "92.50", 1)
	err = VerifyChecksum(tampered)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	assert.ErrorIs(t, VerifyChecksum("000201"), ErrMalformedPayload)
}

func TestParse_MalformedPayloads(t *testing.T) {
	_, err := Parse("5")
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Parse("59xxGenZStore")
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Parse("5920short")
	assert.ErrorIs(t, err, ErrMalformedPayload)

	// Signed length slots must be rejected, not sliced with.
	_, err = Parse("00-5abc")
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Parse("00+9abcdefghij")
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
