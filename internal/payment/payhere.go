package payment

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// PayHere settlement status codes delivered in notify callbacks.
const (
	StatusCodeSuccess    = "2"
	StatusCodePending    = "0"
	StatusCodeCancelled  = "-1"
	StatusCodeFailed     = "-2"
	StatusCodeChargeback = "-3"
)

// Notification is the untrusted webhook payload as PayHere posts it. Nothing
// in it is believed until the signature checks out.
type Notification struct {
	MerchantID string
	OrderID    string
	Amount     string
	Currency   string
	StatusCode string
	Signature  string
}

// Signer implements the PayHere keyed digest: an uppercase hex MD5 over the
// canonical field concatenation, keyed by appending the uppercase hex MD5 of
// the merchant secret.
type Signer struct {
	merchantID string
	secretHash string
}

func NewSigner(merchantID, merchantSecret string) *Signer {
	return &Signer{
		merchantID: merchantID,
		secretHash: md5Upper(merchantSecret),
	}
}

func (s *Signer) MerchantID() string {
	return s.merchantID
}

// RequestHash signs the checkout request sent to the provider.
func (s *Signer) RequestHash(orderID, amount, currency string) string {
	return md5Upper(s.merchantID + orderID + amount + currency + s.secretHash)
}

// NotificationSignature computes the expected signature for a notify payload.
// The merchant id comes from the payload itself: a notification for another
// merchant must produce a mismatch, not a false positive.
func (s *Signer) NotificationSignature(n Notification) string {
	return md5Upper(n.MerchantID + n.OrderID + n.Amount + n.Currency + n.StatusCode + s.secretHash)
}

// Verify recomputes the signature and compares it in constant time. It touches
// no storage, so a forged payload costs the attacker a hash and nothing else.
func (s *Signer) Verify(n Notification) bool {
	expected := s.NotificationSignature(n)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(n.Signature)) == 1
}

// FormatAmount renders the fixed two-decimal amount string PayHere signs over.
func FormatAmount(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
