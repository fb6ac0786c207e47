package statement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAnonymize(t *testing.T) {
	key := []byte("test-key")

	first := Anonymize("1234567890", key)
	second := Anonymize("1234567890", key)
	if first != second {
		t.Errorf("Anonymize is not deterministic: %s != %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("digest length = %d, expected 64 hex characters", len(first))
	}

	otherKey := Anonymize("1234567890", []byte("other-key"))
	if otherKey == first {
		t.Error("digests under different keys must differ")
	}

	otherValue := Anonymize("0987654321", key)
	if otherValue == first {
		t.Error("digests of different values must differ")
	}
}

func TestTransferAnonymized(t *testing.T) {
	key := []byte("test-key")
	original := Transfer{
		SenderAccount:    "1234567890",
		RecipientAccount: "9876543210",
		Amount:           decimal.NewFromInt(200),
		Counterparty:     "JAN KOWALSKI",
		Description:      "skladka czlonkowska",
		ReportedBalance:  decimal.NewFromInt(796),
		Timestamp:        time.Date(2021, 9, 1, 17, 19, 0, 0, time.UTC),
		Direction:        Incoming,
	}

	anon := original.Anonymized(key)

	identity := map[string][2]string{
		"sender account":    {original.SenderAccount, anon.SenderAccount},
		"recipient account": {original.RecipientAccount, anon.RecipientAccount},
		"counterparty":      {original.Counterparty, anon.Counterparty},
		"description":       {original.Description, anon.Description},
	}
	for field, pair := range identity {
		if pair[1] == pair[0] {
			t.Errorf("%s was not anonymized", field)
		}
		if len(pair[1]) != 64 {
			t.Errorf("%s digest length = %d, expected 64", field, len(pair[1]))
		}
	}

	if !anon.Amount.Equal(original.Amount) {
		t.Errorf("amount changed: %s", anon.Amount)
	}
	if !anon.ReportedBalance.Equal(original.ReportedBalance) {
		t.Errorf("reported balance changed: %s", anon.ReportedBalance)
	}
	if !anon.Timestamp.Equal(original.Timestamp) {
		t.Errorf("timestamp changed: %v", anon.Timestamp)
	}
	if anon.Direction != original.Direction {
		t.Errorf("direction changed: %s", anon.Direction)
	}

	if anon.SenderAccount != Anonymize(original.SenderAccount, key) {
		t.Error("sender account digest does not match Anonymize")
	}
}
