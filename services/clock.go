package services

import "time"

// Clock 提供預約開始與結束時間。所有時間皆為 UTC 並截斷到毫秒
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return Canonical(time.Now())
}

// ClockFunc 讓一般函式可作為 Clock 使用
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return Canonical(f())
}

// Canonical 轉成 UTC 毫秒精度，與資料庫 datetime(3) 欄位一致
func Canonical(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
