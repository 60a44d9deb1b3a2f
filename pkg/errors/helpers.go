// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package errors

import stderrors "errors"

// KindOf extracts the Kind from any error, returning "" if err is not
// (or does not wrap) a *QSSError.
func KindOf(err error) Kind {
	var qe *QSSError
	if stderrors.As(err, &qe) {
		return qe.Kind
	}
	return ""
}

// IsKind reports whether err is (or wraps) a *QSSError of the given
// kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsFatal reports whether err is one of the simulator's five fatal
// kinds, as opposed to a non-fatal condition such as a skipped replay
// line or a normal queue rejection.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindConfig, KindCapacity, KindOverlap, KindValidation, KindIO:
		return true
	default:
		return false
	}
}
