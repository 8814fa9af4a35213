package rand

import (
	mrand "math/rand"
	"sync"
	"time"
)

const strChars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ" // 62 characters

var (
	mtx sync.Mutex
	rng = mrand.New(mrand.NewSource(time.Now().UnixNano()))
)

// Str constructs a random alphanumeric string of given length. It is not
// cryptographically secure; it exists for tests and simulations.
func Str(length int) string {
	if length <= 0 {
		return ""
	}

	chars := make([]byte, 0, length)
	mtx.Lock()
	defer mtx.Unlock()
	for len(chars) < length {
		chars = append(chars, strChars[rng.Intn(len(strChars))])
	}
	return string(chars)
}

// Bytes returns n random bytes generated from the internal prng.
func Bytes(n int) []byte {
	bs := make([]byte, n)
	mtx.Lock()
	defer mtx.Unlock()
	for i := range bs {
		bs[i] = byte(rng.Int() & 0xFF)
	}
	return bs
}

// Int63n returns, as an int64, a non-negative random number in [0, n).
func Int63n(n int64) int64 {
	mtx.Lock()
	defer mtx.Unlock()
	return rng.Int63n(n)
}
