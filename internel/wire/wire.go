// Package wire encodes and decodes the typed payloads behind each message
// tag. Payload layouts are part of the protocol: Hello, FileTreeChunk,
// FileRequest and FileComplete are UTF-8 JSON, KeyExchange and FileChunk are
// raw binary. The codec package handles the outer length prefix.
package wire

import (
	"encoding/binary"
	"encoding/json"

	"github.com/pkg/errors"

	"lansync/internel/shared"
)

const (
	saltSize          = 32
	minChunkPayload   = 2 + 8
	keyExchangeHeader = 4
)

// EncodeHello marshals the clear-text greeting.
func EncodeHello(deviceName string) ([]byte, error) {
	buf, err := json.Marshal(shared.Hello{
		Version:    shared.ProtocolVersion,
		DeviceName: deviceName,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed encoding hello")
	}
	return buf, nil
}

func DecodeHello(payload []byte) (*shared.Hello, error) {
	h := &shared.Hello{}
	if err := json.Unmarshal(payload, h); err != nil {
		return nil, errors.Wrapf(err, "failed decoding hello")
	}
	return h, nil
}

// EncodeKeyExchange lays out [4B big-endian pubkey_len][pubkey][32B salt].
func EncodeKeyExchange(pub, salt []byte) ([]byte, error) {
	if len(salt) != saltSize {
		return nil, errors.Errorf("salt must be %d bytes, got %d", saltSize, len(salt))
	}
	out := make([]byte, keyExchangeHeader+len(pub)+saltSize)
	binary.BigEndian.PutUint32(out[:keyExchangeHeader], uint32(len(pub)))
	copy(out[keyExchangeHeader:], pub)
	copy(out[keyExchangeHeader+len(pub):], salt)
	return out, nil
}

func DecodeKeyExchange(payload []byte) (pub, salt []byte, err error) {
	if len(payload) < keyExchangeHeader+saltSize {
		return nil, nil, errors.New("key exchange payload too short")
	}
	pubLen := binary.BigEndian.Uint32(payload[:keyExchangeHeader])
	if int(pubLen) != len(payload)-keyExchangeHeader-saltSize {
		return nil, nil, errors.Errorf("key exchange pubkey length %d out of bounds", pubLen)
	}
	pub = make([]byte, pubLen)
	copy(pub, payload[keyExchangeHeader:keyExchangeHeader+int(pubLen)])
	salt = make([]byte, saltSize)
	copy(salt, payload[keyExchangeHeader+int(pubLen):])
	return pub, salt, nil
}

// EncodeAuthVerify is a single byte: 1 accepted, 0 rejected.
func EncodeAuthVerify(accepted bool) []byte {
	if accepted {
		return []byte{1}
	}
	return []byte{0}
}

func DecodeAuthVerify(payload []byte) (bool, error) {
	if len(payload) != 1 {
		return false, errors.Errorf("auth verify payload must be 1 byte, got %d", len(payload))
	}
	return payload[0] == 1, nil
}

func EncodeFileTree(files []shared.FileEntry) ([]byte, error) {
	if files == nil {
		files = []shared.FileEntry{}
	}
	buf, err := json.Marshal(files)
	if err != nil {
		return nil, errors.Wrapf(err, "failed encoding file tree")
	}
	return buf, nil
}

func DecodeFileTree(payload []byte) ([]shared.FileEntry, error) {
	var files []shared.FileEntry
	if err := json.Unmarshal(payload, &files); err != nil {
		return nil, errors.Wrapf(err, "failed decoding file tree")
	}
	return files, nil
}

func EncodeFileRequest(path string) ([]byte, error) {
	buf, err := json.Marshal(shared.FileRequest{RelativePath: path})
	if err != nil {
		return nil, errors.Wrapf(err, "failed encoding file request")
	}
	return buf, nil
}

func DecodeFileRequest(payload []byte) (string, error) {
	req := shared.FileRequest{}
	if err := json.Unmarshal(payload, &req); err != nil {
		return "", errors.Wrapf(err, "failed decoding file request")
	}
	return req.RelativePath, nil
}

// EncodeFileChunk lays out [2B big-endian path_len][path][8B big-endian
// offset][data].
func EncodeFileChunk(path string, offset uint64, data []byte) ([]byte, error) {
	p := []byte(path)
	if len(p) == 0 {
		return nil, errors.New("file chunk path must not be empty")
	}
	if len(p) > 0xFFFF {
		return nil, errors.Errorf("file chunk path too long: %d bytes", len(p))
	}
	out := make([]byte, 2+len(p)+8+len(data))
	binary.BigEndian.PutUint16(out[:2], uint16(len(p)))
	copy(out[2:], p)
	binary.BigEndian.PutUint64(out[2+len(p):2+len(p)+8], offset)
	copy(out[2+len(p)+8:], data)
	return out, nil
}

func DecodeFileChunk(payload []byte) (path string, offset uint64, data []byte, err error) {
	if len(payload) < minChunkPayload {
		return "", 0, nil, errors.Errorf("file chunk payload too short: %d bytes", len(payload))
	}
	pathLen := int(binary.BigEndian.Uint16(payload[:2]))
	if 2+pathLen+8 > len(payload) {
		return "", 0, nil, errors.Errorf("file chunk path length %d out of bounds", pathLen)
	}
	path = string(payload[2 : 2+pathLen])
	offset = binary.BigEndian.Uint64(payload[2+pathLen : 2+pathLen+8])
	if offset > 1<<63-1 {
		return "", 0, nil, errors.New("file chunk offset is negative")
	}
	data = payload[2+pathLen+8:]
	return path, offset, data, nil
}

func EncodeFileComplete(path string) ([]byte, error) {
	buf, err := json.Marshal(shared.FileComplete{RelativePath: path})
	if err != nil {
		return nil, errors.Wrapf(err, "failed encoding file complete")
	}
	return buf, nil
}

func DecodeFileComplete(payload []byte) (string, error) {
	fc := shared.FileComplete{}
	if err := json.Unmarshal(payload, &fc); err != nil {
		return "", errors.Wrapf(err, "failed decoding file complete")
	}
	return fc.RelativePath, nil
}
