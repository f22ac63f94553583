package spm

import (
	"fmt"
	"strings"
)

// StatusConvention decides which status codes returned by load, encode and
// decode mean success. Engine builds disagree; ZeroIsSuccess matches
// spm_c_api.h and is the default.
type StatusConvention int

const (
	ZeroIsSuccess StatusConvention = iota
	NonZeroIsSuccess
)

// OK reports whether code signals success under c.
func (c StatusConvention) OK(code int32) bool {
	if c == NonZeroIsSuccess {
		return code != 0
	}

	return code == 0
}

func (c StatusConvention) String() string {
	if c == NonZeroIsSuccess {
		return "nonzero"
	}

	return "zero"
}

// ParseStatusConvention accepts "zero" / "nonzero" and a few aliases.
// An empty string yields ZeroIsSuccess.
func ParseStatusConvention(raw string) (StatusConvention, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "zero", "zero-ok", "0":
		return ZeroIsSuccess, nil
	case "nonzero", "non-zero", "nonzero-ok", "1":
		return NonZeroIsSuccess, nil
	default:
		return ZeroIsSuccess, fmt.Errorf("invalid status convention %q (expected zero|nonzero)", raw)
	}
}
