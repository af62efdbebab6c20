package session

import "fmt"

// Stage identifies the pipeline step that failed.
type Stage int

const (
	StageEncode Stage = iota
	StageSample
	StageDecode
)

func (s Stage) String() string {
	switch s {
	case StageEncode:
		return "encode"
	case StageSample:
		return "sample"
	case StageDecode:
		return "decode"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError wraps a failure from one step of Generate.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage.String() + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }
