package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Flags 功能开关，不可变；变更时整体替换
type Flags struct {
	Disabled          bool `json:"isDisabled"`
	DisabledOnWeekend bool `json:"isDisabledOnWeekend"`
}

// Default 首次运行时的开关：启用，周末停用
func Default() Flags {
	return Flags{DisabledOnWeekend: true}
}

// Effective 在给定时刻是否处于停用状态
func (f Flags) Effective(now time.Time) bool {
	if f.Disabled {
		return true
	}
	wd := now.Weekday()
	return f.DisabledOnWeekend && (wd == time.Saturday || wd == time.Sunday)
}

// Store 开关的持久化存储
type Store interface {
	Load(ctx context.Context) (Flags, error)
	Save(ctx context.Context, f Flags) error
	// Watch 每次存储内容变化时发送一个通知，ctx 结束后关闭通道
	Watch(ctx context.Context) (<-chan struct{}, error)
}

func decode(data []byte) (Flags, error) {
	f := Default()
	if err := json.Unmarshal(data, &f); err != nil {
		return Flags{}, fmt.Errorf("decode flags: %w", err)
	}
	return f, nil
}

// notify 非阻塞通知，合并未消费的通知
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
