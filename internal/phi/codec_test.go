package phi

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhadresh-123/phicore/internal/model"
	apperrors "github.com/bhadresh-123/phicore/pkg/errors"
	"github.com/bhadresh-123/phicore/pkg/security"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	keys, err := security.DeriveKeys(strings.Repeat("0f", 32))
	require.NoError(t, err)
	codec, err := NewCodec(keys)
	require.NoError(t, err)
	return codec
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	bag := model.PlaintextBag{
		FieldFirstName:    "Åsa",
		FieldLastName:     "O'Connor-Smith",
		FieldEmail:        "asa@example.com",
		FieldDateOfBirth:  "1990-08-31",
		"clinical_notes":  strings.Repeat("long clinical narrative ", 500),
		"medications":     "sertraline 50mg",
		"address_line1":   "123 Main St",
		"postal_code":     "94110",
	}

	ebag, err := codec.EncryptFields(model.ResourcePatient, bag)
	require.NoError(t, err)
	assert.Len(t, ebag, len(bag))

	// Ciphertext never contains plaintext.
	for name, ef := range ebag {
		assert.NotContains(t, ef.Ciphertext, bag[name])
	}

	got, err := codec.DecryptFields(model.ResourcePatient, ebag)
	require.NoError(t, err)
	assert.Equal(t, bag, got)
}

func TestEncryptSkipsAbsentAndEmptyFields(t *testing.T) {
	codec := newTestCodec(t)

	ebag, err := codec.EncryptFields(model.ResourcePatient, model.PlaintextBag{
		FieldFirstName: "Jo",
		FieldLastName:  "Smith",
		FieldEmail:     "",
	})
	require.NoError(t, err)

	_, present := ebag[FieldEmail]
	assert.False(t, present, "empty field must yield no stored value")
	assert.Len(t, ebag, 2)
}

func TestEncryptRejectsUnknownField(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.EncryptFields(model.ResourcePatient, model.PlaintextBag{
		"not_a_phi_field": "x",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPHICodec))

	_, err = codec.EncryptFields("bogus_type", model.PlaintextBag{FieldFirstName: "Jo"})
	assert.True(t, errors.Is(err, apperrors.ErrPHICodec))
}

func TestHashedFieldsCarrySearchHash(t *testing.T) {
	codec := newTestCodec(t)

	ebag, err := codec.EncryptFields(model.ResourcePatient, model.PlaintextBag{
		FieldFirstName:   "Jo",
		FieldLastName:    "Smith",
		FieldEmail:       "jo@example.com",
		FieldDateOfBirth: "1990-01-01",
	})
	require.NoError(t, err)

	assert.NotNil(t, ebag[FieldEmail].SearchHash)
	assert.NotNil(t, ebag[FieldFirstName].SearchHash)
	assert.Nil(t, ebag[FieldDateOfBirth].SearchHash, "non-searchable field must not carry a hash")

	// The stored hash matches an independently derived one, so lookups on
	// fresh query plaintext find rows written earlier.
	assert.Equal(t, *codec.SearchHash("jo@example.com"), *ebag[FieldEmail].SearchHash)
}

func TestSearchHashDeterminism(t *testing.T) {
	codec := newTestCodec(t)

	a := codec.SearchHash("jo@example.com")
	b := codec.SearchHash("jo@example.com")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, *a, *b)

	c := codec.SearchHash("different@example.com")
	assert.NotEqual(t, *a, *c)

	// Normalization: case and surrounding whitespace do not change the hash.
	assert.Equal(t, *a, *codec.SearchHash("  JO@Example.COM "))

	assert.Nil(t, codec.SearchHash(""))
	assert.Nil(t, codec.SearchHash("   "))
}

func TestSearchHashNotInvertible(t *testing.T) {
	codec := newTestCodec(t)
	h := codec.SearchHash("jo@example.com")
	require.NotNil(t, h)
	assert.NotContains(t, *h, "jo")
	assert.Len(t, *h, 64)
}

type failingEncryptor struct {
	failOn int
	calls  int
}

func (f *failingEncryptor) Encrypt(data []byte) ([]byte, error) {
	f.calls++
	if f.calls >= f.failOn {
		return nil, security.ErrEncryption
	}
	return data, nil
}

func (f *failingEncryptor) Decrypt(data []byte) ([]byte, error) {
	return nil, security.ErrDecryption
}

func TestSingleFieldFailureAbortsWholeBag(t *testing.T) {
	codec := NewCodecWithEncryptor(&failingEncryptor{failOn: 2}, []byte("hash-key"))

	ebag, err := codec.EncryptFields(model.ResourcePatient, model.PlaintextBag{
		FieldFirstName: "Jo",
		FieldLastName:  "Smith",
		FieldEmail:     "jo@example.com",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPHICodec))
	assert.Nil(t, ebag, "partial encryption must never be returned")
}

func TestDecryptFailureReturnsNothing(t *testing.T) {
	codec := newTestCodec(t)

	ebag, err := codec.EncryptFields(model.ResourcePatient, model.PlaintextBag{
		FieldFirstName: "Jo",
		FieldLastName:  "Smith",
	})
	require.NoError(t, err)

	// Corrupt one ciphertext.
	ef := ebag[FieldLastName]
	ef.Ciphertext = "dGFtcGVyZWQ="
	ebag[FieldLastName] = ef

	got, err := codec.DecryptFields(model.ResourcePatient, ebag)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPHICodec))
	assert.Nil(t, got)
}

func TestFieldTablesCoverAllResourceTypes(t *testing.T) {
	for _, rt := range []model.ResourceType{
		model.ResourcePatient,
		model.ResourceClinician,
		model.ResourceSession,
		model.ResourceTreatmentPlan,
	} {
		assert.NotEmpty(t, Fields(rt), "resource type %s", rt)
	}

	// Patient carries the full field set.
	assert.GreaterOrEqual(t, len(Fields(model.ResourcePatient)), 25)
	assert.Nil(t, Fields("bogus"))
}
