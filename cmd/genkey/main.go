package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Generates a fresh EncodingAESKey: 32 random bytes in the 43-character
// unpadded base64 form the official-account console uses.
func main() {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}

	fmt.Printf("EncodingAESKey: %s\n", base64.RawStdEncoding.EncodeToString(key))
}
