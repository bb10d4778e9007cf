package core

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

func newID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("tab-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf[:])
}
