//go:build !linux || !cgo

package input

import (
	"errors"

	"deskxr/internal/types"
)

type XTest struct{}

func NewXTest(displayName string) (*XTest, error) {
	return nil, errors.New("xtest input requires linux with cgo")
}

func (x *XTest) Inject(types.InputEvent) error { return ErrSinkUnavailable }

func (x *XTest) Close() {}
