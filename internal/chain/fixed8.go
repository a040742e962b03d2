package chain

import (
	"fmt"
	"strconv"
	"strings"
)

// fixed8Unit is the number of base units in one whole token.
const fixed8Unit = 100_000_000

// Fixed8 is a chain amount with eight implied decimal places, held as an
// integer count of 1e-8 units. JSON input accepts whole numbers, fractional
// numbers and quoted decimal strings ("0.000396"); the wire form is the
// integer unit count.
type Fixed8 int64

// ParseFixed8 converts a decimal string to base units. At most eight
// fractional digits are accepted; precision is never silently dropped.
func ParseFixed8(s string) (Fixed8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > 8 {
		return 0, fmt.Errorf("amount %q has more than 8 decimal places", s)
	}

	units, err := strconv.ParseInt(intPart+fracPart+strings.Repeat("0", 8-len(fracPart)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed amount %q", s)
	}
	if neg {
		units = -units
	}
	return Fixed8(units), nil
}

// String renders the amount in decimal token form, for logs.
func (f Fixed8) String() string {
	units := int64(f)
	sign := ""
	if units < 0 {
		sign = "-"
		units = -units
	}
	whole := units / fixed8Unit
	frac := units % fixed8Unit
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	return fmt.Sprintf("%s%d.%s", sign, whole, strings.TrimRight(fmt.Sprintf("%08d", frac), "0"))
}

// UnmarshalJSON accepts a bare JSON number or a quoted decimal string and
// converts it to base units.
func (f *Fixed8) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseFixed8(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// MarshalJSON emits the integer unit count the chain expects.
func (f Fixed8) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(f), 10), nil
}
