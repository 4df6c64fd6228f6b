package external

import razorpay "github.com/razorpay/razorpay-go"

// NewRazorpayClient returns an authenticated Razorpay API client
func NewRazorpayClient(keyID, keySecret string) *razorpay.Client {
	return razorpay.NewClient(keyID, keySecret)
}
