package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestExchangeCredential_SecretsNotSerialized(t *testing.T) {
	cred := ExchangeCredential{
		ID:          1,
		UserID:      7,
		Exchange:    "okx",
		AccountType: AccountTypeFutures,
		APIKey:      "enc:v1:key",
		APISecret:   "enc:v1:secret",
		Passphrase:  "enc:v1:pass",
	}

	data, err := json.Marshal(cred)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	for _, secret := range []string{"enc:v1:key", "enc:v1:secret", "enc:v1:pass"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("JSON leaks %q: %s", secret, data)
		}
	}

	view := cred.View()
	if !view.HasPassphrase || view.Exchange != "okx" || view.AccountType != AccountTypeFutures {
		t.Errorf("unexpected view: %+v", view)
	}
}

func TestDecryptedCredential_WipeAndString(t *testing.T) {
	c := DecryptedCredential{APIKey: "k", APISecret: "s", Passphrase: "p"}
	if c.String() != "DecryptedCredential{***}" {
		t.Errorf("String leaks secrets: %s", c.String())
	}

	c.Wipe()
	if c.APIKey != "" || c.APISecret != "" || c.Passphrase != "" {
		t.Errorf("Wipe left values: %+v", c)
	}
}

func TestParseAccountType(t *testing.T) {
	tests := []struct {
		in      string
		want    AccountType
		wantErr bool
	}{
		{"", AccountTypeSpot, false},
		{"spot", AccountTypeSpot, false},
		{"FUTURES", AccountTypeFutures, false},
		{"swap", AccountTypeFutures, false},
		{"margin", "", true},
	}

	for _, tt := range tests {
		got, err := ParseAccountType(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseAccountType(%q) = (%q, %v)", tt.in, got, err)
		}
	}
}

func TestUserStatus_CanTrade(t *testing.T) {
	if !UserStatusActive.CanTrade() {
		t.Error("active user must trade")
	}
	if UserStatusPaused.CanTrade() || UserStatusDisabled.CanTrade() {
		t.Error("paused/disabled users must not trade")
	}
}

func TestSignalAction_Valid(t *testing.T) {
	for _, a := range []SignalAction{ActionBuy, ActionSell, ActionClose} {
		if !a.Valid() {
			t.Errorf("%q must be valid", a)
		}
	}
	if SignalAction("hold").Valid() {
		t.Error("unknown action must be invalid")
	}
}

func TestFailedBalance(t *testing.T) {
	b := FailedBalance(errors.New("invalid api key"))
	if b.Error == nil || *b.Error != "invalid api key" {
		t.Fatalf("error not set: %+v", b)
	}
	if b.TotalBalance != nil || b.Available != nil || b.Used != nil {
		t.Error("failed snapshot must not carry numbers")
	}
}
