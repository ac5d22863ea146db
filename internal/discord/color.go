package discord

import (
	"fmt"
	"strconv"
	"strings"
)

var colors = map[string]int{
	"red":    0xFF0000,
	"green":  0x008000,
	"yellow": 0xFFA500,
	"blue":   0x0000FF,
	"white":  0xFFFFFF,
	"cyan":   0x00FFFF,
}

// parseColor resolves a colour name or a hex literal ("#00ff00", "0x00ff00",
// "00ff00") to an embed colour. An empty string means no colour.
func parseColor(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if c, ok := colors[strings.ToLower(s)]; ok {
		return c, nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(hex) == len(s) {
		hex = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	}
	v, err := strconv.ParseInt(hex, 16, 32)
	if err != nil || v < 0 || v > 0xFFFFFF {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidColor)
	}
	return int(v), nil
}
