package computop

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/crypto/blowfish"
)

// Codec implements the paygate wire encoding: the plaintext parameter string
// is Blowfish-ECB encrypted, hex encoded and sent as Data, with Len carrying
// the unpadded plaintext length.
type Codec struct {
	cipher *blowfish.Cipher
}

// NewCodec creates a codec from the merchant's cipher password
func NewCodec(password string) (*Codec, error) {
	if password == "" {
		return nil, fmt.Errorf("cipher password is empty")
	}
	c, err := blowfish.NewCipher([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("init blowfish cipher: %w", err)
	}
	return &Codec{cipher: c}, nil
}

// Encrypt encodes a plaintext parameter string into the hex Data blob.
// Returns the blob and the plaintext length for the Len field.
func (c *Codec) Encrypt(plain string) (string, int, error) {
	raw := []byte(plain)
	plainLen := len(raw)

	// zero-pad to the 8 byte block size
	if rem := plainLen % blowfish.BlockSize; rem != 0 {
		raw = append(raw, make([]byte, blowfish.BlockSize-rem)...)
	}

	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i += blowfish.BlockSize {
		c.cipher.Encrypt(out[i:i+blowfish.BlockSize], raw[i:i+blowfish.BlockSize])
	}

	return strings.ToUpper(hex.EncodeToString(out)), plainLen, nil
}

// Decrypt decodes a hex Data blob back into the plaintext parameter string.
// plainLen is the value of the Len field sent alongside the blob.
func (c *Codec) Decrypt(dataHex string, plainLen int) (string, error) {
	raw, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode response data: %w", err)
	}
	if len(raw)%blowfish.BlockSize != 0 {
		return "", fmt.Errorf("response data is not block aligned: %d bytes", len(raw))
	}
	if plainLen < 0 || plainLen > len(raw) {
		return "", fmt.Errorf("response length %d out of range", plainLen)
	}

	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i += blowfish.BlockSize {
		c.cipher.Decrypt(out[i:i+blowfish.BlockSize], raw[i:i+blowfish.BlockSize])
	}

	return string(out[:plainLen]), nil
}

// EncodeParams joins parameters into the plaintext wire string. Keys are
// sorted so the same parameter set always produces the same blob.
func EncodeParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "&")
}

// DecodeParams splits a plaintext wire string into parameters. Values are
// url-decoded best effort; the gateway does not encode plain alphanumerics.
func DecodeParams(plain string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Split(plain, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(v); err == nil {
			v = decoded
		}
		params[k] = v
	}
	return params
}
