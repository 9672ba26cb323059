package phi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bhadresh-123/phicore/internal/model"
	apperrors "github.com/bhadresh-123/phicore/pkg/errors"
	"github.com/bhadresh-123/phicore/pkg/security"
)

// Codec encrypts and decrypts the PHI field sets described by the static
// field tables, and derives deterministic search hashes for the hashed
// subset. It is stateless beyond the key material loaded at startup and is
// safe for concurrent use.
type Codec struct {
	enc     security.Encryptor
	hashKey []byte
}

func NewCodec(keys *security.KeyMaterial) (*Codec, error) {
	enc, err := security.NewAESEncryptor(keys.EncryptionKey)
	if err != nil {
		return nil, err
	}
	return &Codec{enc: enc, hashKey: keys.SearchHashKey}, nil
}

// NewCodecWithEncryptor wires an externally supplied encryption provider,
// used by tests and by deployments that source the cipher from a KMS.
func NewCodecWithEncryptor(enc security.Encryptor, hashKey []byte) *Codec {
	return &Codec{enc: enc, hashKey: hashKey}
}

// EncryptFields encrypts every present, non-empty field in bag according to
// the resource type's field table. Absent or empty fields yield no stored
// value at all. Hashed fields get their search hash recomputed from the
// plaintext being written, never carried over from prior state. Any single
// field failure aborts the whole bag.
func (c *Codec) EncryptFields(rt model.ResourceType, bag model.PlaintextBag) (model.EncryptedBag, error) {
	table := Fields(rt)
	if table == nil {
		return nil, fmt.Errorf("%w: unknown resource type %q", apperrors.ErrPHICodec, rt)
	}

	for name := range bag {
		if _, ok := Descriptor(rt, name); !ok {
			return nil, fmt.Errorf("%w: field %q is not a protected field of %s", apperrors.ErrPHICodec, name, rt)
		}
	}

	out := make(model.EncryptedBag, len(bag))
	for _, d := range table {
		plaintext, ok := bag[d.Name]
		if !ok || plaintext == "" {
			continue
		}

		ct, err := c.enc.Encrypt([]byte(plaintext))
		if err != nil {
			return nil, fmt.Errorf("%w: encrypt %q: %v", apperrors.ErrPHICodec, d.Name, err)
		}

		ef := model.EncryptedField{Ciphertext: base64.StdEncoding.EncodeToString(ct)}
		if d.Hashed {
			ef.SearchHash = c.SearchHash(plaintext)
		}
		out[d.Name] = ef
	}
	return out, nil
}

// DecryptFields decrypts every stored field of the bag. All-or-nothing: a
// failure on any field returns no plaintext at all.
func (c *Codec) DecryptFields(rt model.ResourceType, ebag model.EncryptedBag) (model.PlaintextBag, error) {
	if Fields(rt) == nil {
		return nil, fmt.Errorf("%w: unknown resource type %q", apperrors.ErrPHICodec, rt)
	}

	out := make(model.PlaintextBag, len(ebag))
	for name, ef := range ebag {
		if _, ok := Descriptor(rt, name); !ok {
			return nil, fmt.Errorf("%w: stored field %q is not a protected field of %s", apperrors.ErrPHICodec, name, rt)
		}

		ct, err := base64.StdEncoding.DecodeString(ef.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %q: %v", apperrors.ErrPHICodec, name, err)
		}
		pt, err := c.enc.Decrypt(ct)
		if err != nil {
			return nil, fmt.Errorf("%w: decrypt %q: %v", apperrors.ErrPHICodec, name, err)
		}
		out[name] = string(pt)
	}
	return out, nil
}

// SearchHash derives the deterministic one-way hash used for equality
// lookups on searchable fields. Empty plaintext yields nil, matching the
// absent-field storage rule.
func (c *Codec) SearchHash(plaintext string) *string {
	norm := strings.ToLower(strings.TrimSpace(plaintext))
	if norm == "" {
		return nil
	}
	mac := hmac.New(sha256.New, c.hashKey)
	mac.Write([]byte(norm))
	h := hex.EncodeToString(mac.Sum(nil))
	return &h
}
