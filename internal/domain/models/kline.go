package models

import (
	"encoding/json"
	"fmt"
)

// Tick is one timestamped price observation from the source feed.
type Tick struct {
	Price     float64
	Timestamp int64 // unix seconds
}

// KLine is the OHLC record of one bucket. The JSON shape is the bus payload and is
// delivered verbatim to subscribers.
type KLine struct {
	Open              float64 `json:"open"`
	High              float64 `json:"high"`
	Low               float64 `json:"low"`
	Close             float64 `json:"close"`
	UnixTimestamp     int64   `json:"unix_timestamp"`
	TimeWindowSeconds uint64  `json:"time_window_seconds"`
}

// Window returns the record's window identity.
func (k KLine) Window() TimeWindow { return TimeWindow(k.TimeWindowSeconds) }

// Marshal serializes the record as a bus payload.
func (k KLine) Marshal() ([]byte, error) {
	b, err := json.Marshal(k)
	if err != nil {
		return nil, fmt.Errorf("marshal kline: %w", err)
	}
	return b, nil
}

// DecodeKLine parses a bus payload.
func DecodeKLine(b []byte) (KLine, error) {
	var k KLine
	if err := json.Unmarshal(b, &k); err != nil {
		return KLine{}, fmt.Errorf("decode kline: %w", err)
	}
	return k, nil
}

// BusMessage is one record on the bus: routing key plus serialized KLine.
type BusMessage struct {
	Key     string
	Payload []byte
}
