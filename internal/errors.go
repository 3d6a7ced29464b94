package application

import "errors"

var ErrUnknownStore = errors.New("unknown store")
