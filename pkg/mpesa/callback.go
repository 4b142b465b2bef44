package mpesa

import "encoding/json"

// Metadata item names Daraja uses in a successful callback.
const (
	MetaAmount        = "Amount"
	MetaReceiptNumber = "MpesaReceiptNumber"
	MetaPhoneNumber   = "PhoneNumber"
)

// CallbackEnvelope is the outer shape of the asynchronous payment result
// Daraja POSTs to the callback URL.
type CallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback is the payment result for one STK push. CallbackMetadata is
// only present when ResultCode is 0; the schema is externally defined, so
// item values stay loosely typed until extracted.
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata"`
}

// CallbackMetadata is the name/value list carried on success.
type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// CallbackItem is one metadata entry. Value may be a JSON string or number
// depending on the item name.
type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// Amount extracts the paid amount from the metadata. Daraja reports it as a
// JSON number which may carry a fractional part.
func (m *CallbackMetadata) Amount() (int64, bool) {
	raw, ok := m.lookup(MetaAmount)
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return int64(f), true
}

// Receipt extracts the M-PESA receipt number from the metadata.
func (m *CallbackMetadata) Receipt() (string, bool) {
	return m.stringValue(MetaReceiptNumber)
}

// Phone extracts the payer phone number. Daraja sends it as a number, but a
// string is tolerated.
func (m *CallbackMetadata) Phone() (string, bool) {
	if s, ok := m.stringValue(MetaPhoneNumber); ok {
		return s, true
	}
	raw, ok := m.lookup(MetaPhoneNumber)
	if !ok {
		return "", false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", false
	}
	return n.String(), true
}

func (m *CallbackMetadata) stringValue(name string) (string, bool) {
	raw, ok := m.lookup(name)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func (m *CallbackMetadata) lookup(name string) (json.RawMessage, bool) {
	for _, item := range m.Item {
		if item.Name == name && len(item.Value) > 0 {
			return item.Value, true
		}
	}
	return nil, false
}
