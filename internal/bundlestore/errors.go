package bundlestore

import "errors"

var ErrUnknownUUID = errors.New("bundlestore: unknown bundle uuid")
