package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidChannelList is returned when a channel list cannot be parsed.
var ErrInvalidChannelList = errors.New("invalid channel list")

// AllChannels is the wildcard admitting every channel.
const AllChannels = "*"

// ParseChannelList parses a comma separated list of channel ids or
// channel mentions. The wildcard returns nil, meaning no restriction.
func ParseChannelList(input string) ([]uint64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == AllChannels {
		return nil, nil
	}

	if trimmed == "" {
		return nil, ErrInvalidChannelList
	}

	var out []uint64

	for _, part := range strings.Split(trimmed, ",") {
		part = strings.TrimSpace(part)
		part = strings.TrimSuffix(strings.TrimPrefix(part, "<#"), ">")

		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidChannelList, part)
		}

		out = append(out, id)
	}

	return out, nil
}
