// Package hash owns the process-wide md5-simd server used for manifest
// content hashing. StartHash must run before the first GetHash.
package hash

import (
	"encoding/hex"
	"io"

	md5simd "github.com/minio/md5-simd"
)

import . "lansync/internel/log"

var hs md5simd.Server

func GetHash() md5simd.Hasher {
	return hs.NewHash()
}

// Sum streams r through a pooled hasher and returns the hex digest.
func Sum(r io.Reader) (string, error) {
	h := GetHash()
	defer h.Close()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func StartHash() {
	hs = md5simd.NewServer()
}

func EndHash() {
	Log.Debugln("EndHash")
	hs.Close()
}
