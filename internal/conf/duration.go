package conf

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var reDays = regexp.MustCompile("^(-?[0-9]+)d")

// Duration is a duration. It differs from the standard duration in these ways:
// - it is unmarshaled/marshaled from/to a string (instead of a number)
// - it supports days
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	negative := false
	if d < 0 {
		negative = true
		d = -d
	}

	day := Duration(86400 * time.Second)
	days := d / day
	nonDays := d % day

	ret := ""
	if negative {
		ret += "-"
	}

	if days > 0 {
		ret += strconv.FormatInt(int64(days), 10) + "d"
	}

	if nonDays != 0 {
		ret += time.Duration(nonDays).String()
	}

	return ret, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	err := unmarshal(&in)
	if err != nil {
		return err
	}

	negative := false
	days := int64(0)

	m := reDays.FindStringSubmatch(in)
	if m != nil {
		days, _ = strconv.ParseInt(m[1], 10, 64)
		if days < 0 {
			negative = true
			days = -days
		}

		in = in[len(m[0]):]
	}

	var nonDays time.Duration

	if len(in) != 0 {
		nonDays, err = time.ParseDuration(in)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
	}

	nonDays += time.Duration(days) * 24 * time.Hour
	if negative {
		nonDays = -nonDays
	}

	*d = Duration(nonDays)
	return nil
}
