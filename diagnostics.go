/*
Copyright © 2026 the GUESS authors.
This file is part of GUESS.

GUESS is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GUESS is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GUESS.  If not, see <http://www.gnu.org/licenses/>.
*/

package guess

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Diagnostics receives reports from the model components. It is injected
// into the model rather than held globally so that callers decide where
// reports go.
type Diagnostics interface {
	// Warn reports a recoverable condition.
	Warn(fields logrus.Fields, format string, args ...interface{})

	// Abort reports a fatal condition and returns an error that
	// stops the simulation when it is returned from a DomainManipulator.
	Abort(fields logrus.Fields, err error) error
}

// NewDiagnostics returns Diagnostics that write to log.
func NewDiagnostics(log logrus.FieldLogger) Diagnostics {
	return logDiagnostics{log: log}
}

type logDiagnostics struct {
	log logrus.FieldLogger
}

func (l logDiagnostics) Warn(fields logrus.Fields, format string, args ...interface{}) {
	l.log.WithFields(fields).Warnf(format, args...)
}

func (l logDiagnostics) Abort(fields logrus.Fields, err error) error {
	l.log.WithFields(fields).WithError(err).Error("guess: aborting simulation")
	return err
}

type discardDiagnostics struct{}

func (discardDiagnostics) Warn(logrus.Fields, string, ...interface{}) {}
func (discardDiagnostics) Abort(_ logrus.Fields, err error) error     { return err }

// ContractViolation describes a call that broke the preconditions of a
// model operation. It indicates corrupted upstream state, so operations
// panic with it rather than returning it.
type ContractViolation struct {
	Op    string
	Index int
	Msg   string
	Value float64
}

func (c *ContractViolation) Error() string {
	return fmt.Sprintf("guess: %s: contract violation at index %d: %s (got %g)", c.Op, c.Index, c.Msg, c.Value)
}
