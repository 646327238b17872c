package wal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"

	"github.com/yndnr/metastore-go/internal/core/domain"
	"github.com/yndnr/metastore-go/pkg/crypto/adaptive"
)

type wirePayload struct {
	Timestamp int64  `json:"ts"`
	Key       []byte `json:"key"`
	Version   uint64 `json:"ver,omitempty"`

	Value []byte `json:"val,omitempty"`

	// EncryptedValue is adaptive.Cipher.Encrypt(value, msgType||key).
	EncryptedValue []byte `json:"enc_val,omitempty"`
}

func additionalData(msgType byte, key []byte) []byte {
	ad := make([]byte, 0, 1+len(key))
	ad = append(ad, msgType)
	return append(ad, key...)
}

func encodeEntryFrame(e *Entry, cipher adaptive.Cipher) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("wal: entry is nil")
	}
	if !e.Action.Valid() || !e.Table.Valid(domain.MaxTables) {
		return nil, ErrInvalidEntryType
	}
	if len(e.Key) == 0 {
		return nil, fmt.Errorf("wal: missing key for %s", e.Action)
	}

	msgType := e.MsgType()
	p := wirePayload{
		Timestamp: e.Timestamp,
		Key:       e.Key,
		Version:   e.Version,
	}

	if e.Action != domain.ActionDelete {
		if cipher == nil {
			p.Value = e.Value
		} else {
			sealed, err := cipher.Encrypt(e.Value, additionalData(msgType, e.Key))
			if err != nil {
				return nil, fmt.Errorf("wal: encrypt value: %w", err)
			}
			p.EncryptedValue = sealed
		}
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("wal: marshal payload: %w", err)
	}

	// Length = CRC(4) + Type(1) + Payload.
	length := uint32(4 + 1 + len(payload))

	out := make([]byte, 8, 4+int(length))
	binary.BigEndian.PutUint32(out[0:4], length)
	out = append(out, msgType)
	out = append(out, payload...)
	binary.BigEndian.PutUint32(out[4:8], crc32.ChecksumIEEE(out[8:]))
	return out, nil
}

func decodeEntryFrame(frame []byte, cipher adaptive.Cipher) (*Entry, error) {
	// Frame layout: [crc32:4][type:1][payload...]
	if len(frame) < 5 {
		return nil, ErrCorruptedEntry
	}

	wantCRC := binary.BigEndian.Uint32(frame[:4])
	if crc32.ChecksumIEEE(frame[4:]) != wantCRC {
		return nil, ErrChecksumMismatch
	}

	msgType := frame[4]
	table, action := SplitMsgType(msgType)
	if !action.Valid() || !table.Valid(domain.MaxTables) {
		return nil, ErrInvalidEntryType
	}

	var p wirePayload
	if err := json.Unmarshal(frame[5:], &p); err != nil {
		return nil, fmt.Errorf("wal: unmarshal payload: %w", err)
	}

	out := &Entry{
		Action:    action,
		Table:     table,
		Key:       p.Key,
		Version:   p.Version,
		Timestamp: p.Timestamp,
	}

	if action == domain.ActionDelete || p.EncryptedValue == nil {
		out.Value = p.Value
		return out, nil
	}

	if cipher == nil {
		return nil, fmt.Errorf("wal: encrypted entry requires cipher")
	}
	plain, err := cipher.Decrypt(p.EncryptedValue, additionalData(msgType, p.Key))
	if err != nil {
		return nil, fmt.Errorf("wal: decrypt value: %w", err)
	}
	out.Value = plain
	return out, nil
}
