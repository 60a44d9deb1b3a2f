// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import qsserrors "github.com/jontk/qss-sim/pkg/errors"

// Sentinel configuration errors, all of kind ConfigError.
var (
	ErrMissingNumNodes   = qsserrors.NewConfigError("num_nodes must be greater than 0")
	ErrInvalidQueueLimit = qsserrors.NewConfigError("queue_limit must be nil or >= 0")
	ErrUnknownDiscipline = qsserrors.NewConfigError("discipline must be FIFO or Priority")
)
