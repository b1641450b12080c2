package session

import (
	"errors"
	"fmt"
)

var errEmptyID = errors.New("session id is empty")

func unknownSession(id string) error {
	return fmt.Errorf("session %q is unknown or expired", id)
}
