// Package queueitem encodes and decodes interest-queue entries: a pair of
// (interest-level-at-enqueue, address) stored as a two-element JSON array.
package queueitem

import (
	"encoding/json"
	"fmt"

	"serverstf/internal/domain/address"
)

// Item is one interest-queue entry.
type Item struct {
	Interest int
	Address  address.Address
}

// Encode renders an Item as the UTF-8 JSON array `[interest, "ip:port"]`.
func Encode(item Item) []byte {
	// Errors are impossible here: both fields marshal trivially.
	data, _ := json.Marshal([2]any{item.Interest, item.Address.String()})
	return data
}

// Decode parses the inverse of Encode. It returns an error if the payload
// isn't a two-element JSON array, the first element isn't an integer, or
// the second element isn't a valid address.
func Decode(raw []byte) (Item, error) {
	var fields []json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Item{}, fmt.Errorf("interest queue item must be a 2-element array: %w", err)
	}
	if len(fields) != 2 {
		return Item{}, fmt.Errorf("interest queue item must have exactly 2 elements, got %d", len(fields))
	}

	var interest int
	if err := json.Unmarshal(fields[0], &interest); err != nil {
		return Item{}, fmt.Errorf("interest queue item: interest level must be an integer: %w", err)
	}

	var rawAddr string
	if err := json.Unmarshal(fields[1], &rawAddr); err != nil {
		return Item{}, fmt.Errorf("interest queue item: address must be a string: %w", err)
	}
	addr, err := address.Parse(rawAddr)
	if err != nil {
		return Item{}, fmt.Errorf("interest queue item: %w", err)
	}

	return Item{Interest: interest, Address: addr}, nil
}
