// Package crypto seals transport frames with a key shared by every peer on
// a channel.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// ErrOpen is returned for frames that cannot be authenticated.
var ErrOpen = errors.New("open sealed frame")

const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

// Box seals frames with AES-GCM. A nil *Box passes frames through unchanged.
type Box struct {
	aead    cipher.AEAD
	channel []byte
}

type sealedFrame struct {
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// NewBox derives a key from secret, salted by the channel name so the same
// secret on two channels yields unrelated keys. An empty secret disables
// sealing and returns a nil Box.
func NewBox(secret, channel string) (*Box, error) {
	if secret == "" {
		return nil, nil
	}
	salt := sha256.Sum256([]byte("pearcron::seal::" + channel))
	key, err := scrypt.Key([]byte(secret), salt[:], scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead, channel: []byte(channel)}, nil
}

// Enabled reports whether frames are sealed.
func (b *Box) Enabled() bool { return b != nil }

// Seal encrypts plaintext into a JSON frame. The channel name is bound as
// additional data.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	if b == nil {
		return plaintext, nil
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := b.aead.Seal(nil, nonce, plaintext, b.channel)
	return json.Marshal(sealedFrame{
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(out),
	})
}

// Open reverses Seal.
func (b *Box) Open(frame []byte) ([]byte, error) {
	if b == nil {
		return frame, nil
	}
	var sf sealedFrame
	if err := json.Unmarshal(frame, &sf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(sf.Nonce)
	if err != nil || len(nonce) != b.aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce", ErrOpen)
	}
	data, err := base64.StdEncoding.DecodeString(sf.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	plain, err := b.aead.Open(nil, nonce, data, b.channel)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return plain, nil
}
