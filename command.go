// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package powerctl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ZaparooProject/go-powerctl/internal/frame"
)

// Operation is the action applied to a port. Its value is the wire code.
type Operation uint8

// Operations understood by the board
const (
	OpOff    Operation = frame.CodeOff
	OpOn     Operation = frame.CodeOn
	OpReboot Operation = frame.CodeReboot
	OpStatus Operation = frame.CodeStatus
)

var operationNames = map[string]Operation{
	"off":    OpOff,
	"on":     OpOn,
	"reboot": OpReboot,
	"status": OpStatus,
}

// OperationNames lists the accepted action names in wire-code order.
func OperationNames() []string {
	return []string{"off", "on", "reboot", "status"}
}

// ParseOperation looks up an action name. Matching is case-sensitive.
func ParseOperation(name string) (Operation, bool) {
	op, ok := operationNames[name]
	return op, ok
}

// Code returns the operation code carried in the frame.
func (o Operation) Code() byte {
	return byte(o)
}

// Valid reports whether o is one of the four known operations.
func (o Operation) Valid() bool {
	return o <= OpStatus
}

// ExpectsReply is true only for OpStatus.
func (o Operation) ExpectsReply() bool {
	return frame.IsStatusRequest(o.Code())
}

func (o Operation) String() string {
	switch o {
	case OpOff:
		return "off"
	case OpOn:
		return "on"
	case OpReboot:
		return "reboot"
	case OpStatus:
		return "status"
	default:
		return fmt.Sprintf("Operation(%d)", uint8(o))
	}
}

// Command is one validated request for the board.
type Command struct {
	Port      uint8
	Operation Operation
}

// Frame encodes the command for transmission.
func (c Command) Frame() frame.Frame {
	return frame.Encode(c.Port, c.Operation.Code())
}

func (c Command) String() string {
	return fmt.Sprintf("%s port %d", c.Operation, c.Port)
}

// NewCommand builds a command from typed values, enforcing the same rules as
// Validate.
func NewCommand(port int, op Operation, numPorts int) (Command, error) {
	if !op.Valid() {
		return Command{}, newUsageError("action", op.String(), "unknown action")
	}
	if err := checkPort(port, numPorts, strconv.Itoa(port)); err != nil {
		return Command{}, err
	}
	return Command{Port: uint8(port), Operation: op}, nil
}

// Validate turns raw caller input into a Command. Any problem yields a
// *UsageError; nothing is sent to the device.
func Validate(action, port string, numPorts int) (Command, error) {
	op, ok := ParseOperation(action)
	if !ok {
		return Command{}, newUsageError("action", action,
			"must be one of "+strings.Join(OperationNames(), "|"))
	}

	n, err := strconv.Atoi(port)
	if err != nil {
		return Command{}, newUsageError("port", port, "not a number")
	}
	if err := checkPort(n, numPorts, port); err != nil {
		return Command{}, err
	}

	return Command{Port: uint8(n), Operation: op}, nil
}

func checkPort(n, numPorts int, raw string) error {
	if numPorts <= 0 || numPorts > MaxPorts {
		return newUsageError("port", raw, fmt.Sprintf("port count %d out of range", numPorts))
	}
	if n < 0 {
		return newUsageError("port", raw, "must not be negative")
	}
	if n >= numPorts {
		return newUsageError("port", raw, fmt.Sprintf("must be less than %d", numPorts))
	}
	return nil
}
