// Copyright 2022 Linkall Inc.
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

package errors

import (
	// standard libraries.
	"encoding/json"
	"fmt"
	"strings"

	// third-party libraries.
	"github.com/pkg/errors"
)

type ErrorCode int

const (
	ErrorCode_UNKNOWN ErrorCode = iota
	// ErrorCode_MALFORMED marks input produced by the guest that failed validation.
	ErrorCode_MALFORMED
	// ErrorCode_EXHAUSTED marks a "no space, try later" condition.
	ErrorCode_EXHAUSTED
	// ErrorCode_INVALID_CONFIG marks host-side setup mistakes.
	ErrorCode_INVALID_CONFIG
	ErrorCode_INTERNAL
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCode_MALFORMED:
		return "MALFORMED"
	case ErrorCode_EXHAUSTED:
		return "EXHAUSTED"
	case ErrorCode_INVALID_CONFIG:
		return "INVALID_CONFIG"
	case ErrorCode_INTERNAL:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func New(desc string) *ErrorType {
	return &ErrorType{
		Description: desc,
	}
}

type ErrorType struct {
	Description    string    `json:"description"`
	Message        string    `json:"message"`
	Code           ErrorCode `json:"code"`
	underlayErrors []error
}

var _ error = (*ErrorType)(nil)

func (e *ErrorType) WithCode(c ErrorCode) *ErrorType {
	_e := e.copy()
	_e.Code = c
	return _e
}

// WithMessage adds a message explaining what was being attempted when the error occurred.
func (e *ErrorType) WithMessage(str string) *ErrorType {
	_e := e.copy()
	_e.Message = str
	return _e
}

func (e *ErrorType) WithMessagef(format string, args ...interface{}) *ErrorType {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// Wrap records err as the underlay error of this error.
func (e *ErrorType) Wrap(err error) *ErrorType {
	if err == nil || err.Error() == "" {
		return e
	}
	_e := e.copy()
	_e.underlayErrors = append(_e.underlayErrors, err)
	return _e
}

func (e *ErrorType) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Description)
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	for _, err := range e.underlayErrors {
		sb.WriteString(": ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Is reports whether target has the same code and description, so errors built from the
// same sentinel match regardless of message.
func (e *ErrorType) Is(target error) bool {
	t, ok := target.(*ErrorType)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Description == e.Description
}

func (e *ErrorType) Unwrap() error {
	if len(e.underlayErrors) == 0 {
		return nil
	}
	return e.underlayErrors[0]
}

func (e *ErrorType) JSON() string {
	data, _ := json.Marshal(e)
	return string(data)
}

func (e *ErrorType) copy() *ErrorType {
	return &ErrorType{
		Description:    e.Description,
		Message:        e.Message,
		Code:           e.Code,
		underlayErrors: append([]error(nil), e.underlayErrors...),
	}
}

func codeOf(err error) ErrorCode {
	var et *ErrorType
	if errors.As(err, &et) {
		return et.Code
	}
	return ErrorCode_UNKNOWN
}

func IsMalformed(err error) bool {
	return codeOf(err) == ErrorCode_MALFORMED
}

func IsExhausted(err error) bool {
	return codeOf(err) == ErrorCode_EXHAUSTED
}

func IsInvalidConfig(err error) bool {
	return codeOf(err) == ErrorCode_INVALID_CONFIG
}

// Chain groups many errors as a single error, skipping nils.
func Chain(errs ...error) error {
	var err error
	for _, e := range errs {
		if e == nil {
			continue
		}
		if err == nil {
			err = e
			continue
		}
		err = errors.Wrap(err, e.Error())
	}
	return err
}
