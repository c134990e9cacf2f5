package services

import (
	"crypto/rand"
	"math/big"

	"github.com/reclutas/apiserver/types"
)

// Overlaps reports whether the half-open minute ranges [aStart, aStart+aLen)
// and [bStart, bStart+bLen) intersect. Touching ranges do not overlap.
func Overlaps(aStart, aLen, bStart, bLen int) bool {
	return aStart < bStart+bLen && aStart+aLen > bStart
}

// FindConflict returns the first interview in existing that overlaps
// candidate. Interviews with candidate's ID are skipped, as are those on
// other dates. Status is not considered.
func FindConflict(existing []types.Interview, candidate types.Interview) (types.Interview, bool) {
	for _, other := range existing {
		if candidate.ID != 0 && other.ID == candidate.ID {
			continue
		}
		if other.Date != candidate.Date {
			continue
		}
		if Overlaps(candidate.StartMinute(), candidate.DurationMinutes, other.StartMinute(), other.DurationMinutes) {
			return other, true
		}
	}
	return types.Interview{}, false
}

// checkSlot validates the time fields of an interview, applying the default
// duration when none was given.
func checkSlot(interview *types.Interview) error {
	if interview.Date.IsZero() {
		return validationf("fecha is required")
	}
	start := interview.StartMinute()
	if start < 0 || start >= types.MinutesPerDay {
		return validationf("hora must be between 00:00 and 23:59")
	}
	if interview.DurationMinutes == 0 {
		interview.DurationMinutes = types.DefaultInterviewDuration
	}
	if interview.DurationMinutes < 0 {
		return validationf("duracion must be positive")
	}
	if interview.EndMinute() > types.MinutesPerDay {
		return validationf("interview must end by midnight")
	}
	return nil
}

const accessCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newAccessCode returns a code shaped like XXXX-XXXX.
func newAccessCode() (string, error) {
	out := make([]byte, 0, 9)
	limit := big.NewInt(int64(len(accessCodeAlphabet)))
	for i := 0; i < 8; i++ {
		if i == 4 {
			out = append(out, '-')
		}
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out = append(out, accessCodeAlphabet[n.Int64()])
	}
	return string(out), nil
}
