package tapo

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	seedSize      = 16
	hashSize      = sha256.Size
	signatureSize = sha256.Size
)

func sha256Sum(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// authHash KLAP v2: sha256(sha1(username) || sha1(password))
func authHash(username, password string) []byte {
	u := sha1.Sum([]byte(username))
	p := sha1.Sum([]byte(password))
	return sha256Sum(u[:], p[:])
}

// klapCipher 会话密钥材料，由两端种子与认证哈希派生。
// seq 每次请求自增，同时参与 IV 与签名。
type klapCipher struct {
	key       []byte
	ivPrefix  []byte
	signature []byte

	mu  sync.Mutex
	seq int32
}

func newKlapCipher(localSeed, remoteSeed, auth []byte) *klapCipher {
	material := make([]byte, 0, len(localSeed)+len(remoteSeed)+len(auth))
	material = append(material, localSeed...)
	material = append(material, remoteSeed...)
	material = append(material, auth...)

	iv := sha256Sum([]byte("iv"), material)
	return &klapCipher{
		key:       sha256Sum([]byte("lsk"), material)[:16],
		ivPrefix:  iv[:12],
		signature: sha256Sum([]byte("ldk"), material)[:28],
		seq:       int32(binary.BigEndian.Uint32(iv[len(iv)-4:])),
	}
}

func (c *klapCipher) nextSeq() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *klapCipher) ivFor(seq int32) []byte {
	iv := make([]byte, aes.BlockSize)
	copy(iv, c.ivPrefix)
	binary.BigEndian.PutUint32(iv[12:], uint32(seq))
	return iv
}

// encrypt 分配下一个序号并加密，返回 signature || ciphertext
func (c *klapCipher) encrypt(plain []byte) ([]byte, int32, error) {
	seq := c.nextSeq()
	payload, err := c.seal(seq, plain)
	return payload, seq, err
}

func (c *klapCipher) seal(seq int32, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.ivFor(seq)).CryptBlocks(out, padded)

	var seqBytes [4]byte
	binary.BigEndian.PutUint32(seqBytes[:], uint32(seq))
	sig := sha256Sum(c.signature, seqBytes[:], out)

	return append(sig, out...), nil
}

func (c *klapCipher) decrypt(seq int32, payload []byte) ([]byte, error) {
	if len(payload) < signatureSize+aes.BlockSize || (len(payload)-signatureSize)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: invalid payload length %d", ErrProtocol, len(payload))
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	body := payload[signatureSize:]
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, c.ivFor(seq)).CryptBlocks(out, body)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, fmt.Errorf("%w: bad padding", ErrProtocol)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrProtocol)
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrProtocol)
		}
	}
	return b[:len(b)-n], nil
}
