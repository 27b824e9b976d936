package tenant

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTaxIDStripsPunctuation(t *testing.T) {
	got, err := NormalizeTaxID("05.122.231/0001-91")
	require.NoError(t, err)
	require.Equal(t, "05122231000191", got)
}

func TestNormalizeTaxIDAcceptsBareDigits(t *testing.T) {
	got, err := NormalizeTaxID("05122231000191")
	require.NoError(t, err)
	require.Equal(t, "05122231000191", got)
}

func TestNormalizeTaxIDRejectsWrongLength(t *testing.T) {
	_, err := NormalizeTaxID("12345")
	require.ErrorIs(t, err, ErrInvalidTaxID)
}

func TestNormalizeTaxIDRejectsLetters(t *testing.T) {
	_, err := NormalizeTaxID("05122231x00191")
	require.ErrorIs(t, err, ErrInvalidTaxID)
}

func TestSignatureKeyIncludesSchema(t *testing.T) {
	base := Signature{Host: "db1.internal", Port: 5432, Database: "vendas", User: "app"}
	a, b := base, base
	a.Schema = "rimef"
	b.Schema = "acme"
	require.NotEqual(t, a.Key(), b.Key())
}

func TestSecretNeverPrints(t *testing.T) {
	s := Secret("hunter2")
	require.Equal(t, "[redacted]", fmt.Sprintf("%v", s))
	require.Equal(t, "hunter2", s.Reveal())
}
