package es

import "fmt"

// ExpectedVersion is the aggregate version an append expects to find.
type ExpectedVersion struct {
	value int64
}

const (
	expectedVersionAny      = -1
	expectedVersionNoStream = -2
)

// Any skips the version check
func Any() ExpectedVersion {
	return ExpectedVersion{value: expectedVersionAny}
}

// NoStream expects the aggregate to have no events yet
func NoStream() ExpectedVersion {
	return ExpectedVersion{value: expectedVersionNoStream}
}

// Exact expects the aggregate to be at the given version. Exact(0) behaves like NoStream.
func Exact(version int64) ExpectedVersion {
	if version < 0 {
		panic(fmt.Sprintf("exact version must be non-negative, got %d", version))
	}
	return ExpectedVersion{value: version}
}

// IsAny reports whether no check is performed
func (ev ExpectedVersion) IsAny() bool {
	return ev.value == expectedVersionAny
}

// IsNoStream reports whether the aggregate must not exist
func (ev ExpectedVersion) IsNoStream() bool {
	return ev.value == expectedVersionNoStream
}

// IsExact reports whether a specific version is expected
func (ev ExpectedVersion) IsExact() bool {
	return ev.value >= 0
}

// Value returns the expected version; 0 for Any and NoStream.
func (ev ExpectedVersion) Value() int64 {
	if ev.value >= 0 {
		return ev.value
	}
	return 0
}

// Check compares the current version of a stream against the expectation.
func (ev ExpectedVersion) Check(current int64) error {
	switch {
	case ev.IsAny():
		return nil
	case ev.IsNoStream() && current != 0:
		return conflict("expected no stream, found version %d", current)
	case ev.IsExact() && current != ev.value:
		return conflict("expected version %d, found %d", ev.value, current)
	}
	return nil
}

func (ev ExpectedVersion) String() string {
	if ev.IsAny() {
		return "Any"
	}
	if ev.IsNoStream() {
		return "NoStream"
	}
	return fmt.Sprintf("Exact(%d)", ev.value)
}
