// Copyright (C) 2026 Tidewater Labs (mkivela@tidewaterlabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding attribution requirements.

package synth

import "fmt"

// EncodingError reports a synthesis request the encoder cannot express:
// width below the gate model's minimum, a degenerate gate count, or a
// target incompatible with the requested dimensions. It is a
// configuration-level failure and aborts the job.
type EncodingError struct {
	Model     string
	Width     int
	GateCount int
	Detail    string
}

// Error implements error.
func (e *EncodingError) Error() string {
	return fmt.Sprintf("synthesis encoding for %s width=%d gates=%d: %s",
		e.Model, e.Width, e.GateCount, e.Detail)
}

// encodingErrf builds an EncodingError with a formatted detail message.
func encodingErrf(model string, width, gateCount int, format string, args ...any) *EncodingError {
	return &EncodingError{
		Model:     model,
		Width:     width,
		GateCount: gateCount,
		Detail:    fmt.Sprintf(format, args...),
	}
}
