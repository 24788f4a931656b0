//go:build !linux

package input

import (
	"errors"

	"deskxr/internal/types"
)

type Uinput struct{}

func NewUinput(path string, width, height float64) (*Uinput, error) {
	return nil, errors.New("uinput is only available on linux")
}

func (u *Uinput) SetDesktopExtent(width, height float64) {}

func (u *Uinput) Inject(types.InputEvent) error { return ErrSinkUnavailable }

func (u *Uinput) Close() {}
