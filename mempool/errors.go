package mempool

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandInMap is returned to the client if we saw the command earlier
	ErrCommandInMap = errors.New("command already exists in mempool")
	ErrEmptyCommand = errors.New("empty command")
)

// ErrMempoolIsFull means the mempool can not accept more commands
type ErrMempoolIsFull struct {
	NumCommands int
	MaxCommands int
}

func (e ErrMempoolIsFull) Error() string {
	return fmt.Sprintf("mempool is full: number of commands %d (max: %d)", e.NumCommands, e.MaxCommands)
}

// ErrCommandTooLarge means the command is too big to be sent in a vertex
type ErrCommandTooLarge struct {
	Max    int
	Actual int
}

func (e ErrCommandTooLarge) Error() string {
	return fmt.Sprintf("command too large. Max size is %d, but got %d", e.Max, e.Actual)
}
