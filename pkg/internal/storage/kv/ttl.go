package kv

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// expiringMagic 标记带过期时间的值，供不支持逐键 TTL 的后端使用.
var expiringMagic = []byte("dv\x00ttl:")

type expiring struct {
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"x"` // unix 毫秒
}

// wrap 在 ttl>0 时把值包装为带过期时间的记录，否则返回值的副本.
func wrap(value []byte, ttl time.Duration, now time.Time) ([]byte, error) {
	if ttl <= 0 {
		return bytes.Clone(value), nil
	}

	b, err := sonic.Marshal(expiring{Value: value, ExpiresAt: now.Add(ttl).UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("marshal expiring value: %w", err)
	}

	return append(bytes.Clone(expiringMagic), b...), nil
}

// unwrap 还原值，alive 为 false 表示已过期.
func unwrap(raw []byte, now time.Time) (value []byte, alive bool, err error) {
	if !bytes.HasPrefix(raw, expiringMagic) {
		return raw, true, nil
	}

	var e expiring
	if err := sonic.Unmarshal(raw[len(expiringMagic):], &e); err != nil {
		return nil, false, fmt.Errorf("unmarshal expiring value: %w", err)
	}

	if now.UnixMilli() >= e.ExpiresAt {
		return nil, false, nil
	}

	return e.Value, true, nil
}
