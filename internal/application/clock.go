package application

import "time"

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock implementasi default, pakai time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock selalu balikin waktu yang sama, buat test
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }
