package protocol

import "github.com/Masterminds/semver/v3"

// SupportedProtocolRange is the range of connector protocol versions this
// executor knows how to speak. A connector's SPEC message declares its own
// ProtocolVersion, which CheckProtocolVersion tests against this range.
// The executor does not call CheckProtocolVersion: discover and read run
// whatever version a connector declares.
const SupportedProtocolRange = ">= 0.2.0, < 2.0.0"

// CheckProtocolVersion reports whether version satisfies
// SupportedProtocolRange. An empty version is treated as compatible —
// older connectors that never declared a protocol version are assumed to
// speak the baseline protocol.
func CheckProtocolVersion(version string) (bool, error) {
	if version == "" {
		return true, nil
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return false, err
	}

	constraint, err := semver.NewConstraint(SupportedProtocolRange)
	if err != nil {
		return false, err
	}

	return constraint.Check(v), nil
}
