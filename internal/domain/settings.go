package domain

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	SettingBusinessName = "businessName"
	SettingBranchName   = "branchName"
	SettingCurrency     = "currency"
	SettingTheme        = "theme"
	SettingLanguage     = "language"
	SettingDeliveryFee  = "deliveryFee"
	SettingLogoURL      = "logoUrl"
	SettingAddress      = "address"
)

var DefaultDeliveryFee = decimal.NewFromInt(100)

// Settings is the typed view of the key/value settings rows. Keys the backend
// does not recognize are kept in Extra and written back untouched.
type Settings struct {
	BusinessName string
	BranchName   string
	Currency     string
	Theme        string
	Language     string
	DeliveryFee  decimal.Decimal
	LogoURL      string
	Address      string
	Extra        map[string]json.RawMessage
}

func DefaultSettings() Settings {
	return Settings{
		Currency:    "XAF",
		Theme:       "light",
		Language:    "en",
		DeliveryFee: DefaultDeliveryFee,
		Extra:       map[string]json.RawMessage{},
	}
}

// SettingsFromValues decodes stored rows on top of the defaults. Values with
// the wrong JSON shape fall back to the default for that key.
func SettingsFromValues(values map[string]json.RawMessage) Settings {
	s := DefaultSettings()
	for key, raw := range values {
		switch key {
		case SettingBusinessName:
			s.BusinessName = decodeString(raw, s.BusinessName)
		case SettingBranchName:
			s.BranchName = decodeString(raw, s.BranchName)
		case SettingCurrency:
			s.Currency = decodeString(raw, s.Currency)
		case SettingTheme:
			s.Theme = decodeString(raw, s.Theme)
		case SettingLanguage:
			s.Language = decodeString(raw, s.Language)
		case SettingLogoURL:
			s.LogoURL = decodeString(raw, s.LogoURL)
		case SettingAddress:
			s.Address = decodeString(raw, s.Address)
		case SettingDeliveryFee:
			s.DeliveryFee = decodeFee(raw)
		default:
			s.Extra[key] = append(json.RawMessage(nil), raw...)
		}
	}
	return s
}

// Values is the inverse of SettingsFromValues.
func (s Settings) Values() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(s.Extra)+8)
	for key, raw := range s.Extra {
		out[key] = raw
	}
	put := func(key string, v any) {
		raw, err := json.Marshal(v)
		if err == nil {
			out[key] = raw
		}
	}
	put(SettingBusinessName, s.BusinessName)
	put(SettingBranchName, s.BranchName)
	put(SettingCurrency, s.Currency)
	put(SettingTheme, s.Theme)
	put(SettingLanguage, s.Language)
	put(SettingLogoURL, s.LogoURL)
	put(SettingAddress, s.Address)
	out[SettingDeliveryFee] = json.RawMessage(s.DeliveryFee.String())
	return out
}

func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = SettingsFromValues(values)
	return nil
}

// ValidateSettingValue rejects updates the typed view could not read back.
func ValidateSettingValue(key string, raw json.RawMessage) error {
	switch key {
	case SettingBusinessName, SettingBranchName, SettingCurrency, SettingTheme,
		SettingLanguage, SettingLogoURL, SettingAddress:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return &ValidationError{Field: key, Message: "must be a string"}
		}
	case SettingDeliveryFee:
		fee, ok := parseFee(raw)
		if !ok {
			return &ValidationError{Field: key, Message: "must be a number"}
		}
		if fee.IsNegative() {
			return &ValidationError{Field: key, Message: "must not be negative"}
		}
	default:
		if strings.TrimSpace(key) == "" {
			return &ValidationError{Field: "key", Message: "must not be empty"}
		}
	}
	return nil
}

func decodeString(raw json.RawMessage, fallback string) string {
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return fallback
	}
	return v
}

func decodeFee(raw json.RawMessage) decimal.Decimal {
	fee, ok := parseFee(raw)
	if !ok {
		return DefaultDeliveryFee
	}
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee
}

// parseFee accepts a JSON number or a numeric string.
func parseFee(raw json.RawMessage) (decimal.Decimal, bool) {
	var fee decimal.Decimal
	if err := json.Unmarshal(raw, &fee); err != nil {
		return decimal.Zero, false
	}
	return fee, true
}
