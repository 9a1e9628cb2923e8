package host

import "errors"

var (
	errMeminfoIncomplete = errors.New("meminfo lacks MemTotal or MemAvailable")
	errEmptyCommand      = errors.New("empty command")
)
