package formats

import (
	"fmt"

	"repack/internal/services"
)

// Direction states which side of a conversion a format may appear on.
type Direction int

const (
	Bidirectional Direction = iota
	SourceOnly
	TargetOnly
)

func (d Direction) String() string {
	switch d {
	case SourceOnly:
		return "source-only"
	case TargetOnly:
		return "target-only"
	default:
		return "bidirectional"
	}
}

// CanExtract reports whether the format may be used as a source.
func (d Direction) CanExtract() bool { return d != TargetOnly }

// CanPack reports whether the format may be used as a target.
func (d Direction) CanPack() bool { return d != SourceOnly }

// Availability records whether this deployment can run the format's codec.
type Availability int

const (
	Available Availability = iota
	MissingDependency
)

func (a Availability) String() string {
	if a == MissingDependency {
		return "unavailable-missing-dependency"
	}
	return "available"
}

// Descriptor describes one known container format.
type Descriptor struct {
	Token        string
	Extension    string
	Aliases      []string
	Direction    Direction
	Availability Availability
	Dependency   string
	Detail       string
	Description  string
}

// CheckSource returns nil when the format can be extracted in this deployment.
func (d Descriptor) CheckSource() error {
	if !d.Direction.CanExtract() {
		return services.Wrap(services.ErrUnsupportedFormat, StageResolve, d.Token, "format cannot be used as a source", nil)
	}
	return d.checkAvailable()
}

// CheckTarget returns nil when the format can be packed in this deployment.
func (d Descriptor) CheckTarget() error {
	if !d.Direction.CanPack() {
		return services.Wrap(services.ErrUnsupportedFormat, StageResolve, d.Token, "format cannot be used as a target", nil)
	}
	return d.checkAvailable()
}

func (d Descriptor) checkAvailable() error {
	if d.Availability == Available {
		return nil
	}
	msg := fmt.Sprintf("%s is not installed", d.Dependency)
	if d.Detail != "" {
		msg += " (" + d.Detail + ")"
	}
	return services.Wrap(services.ErrDependencyUnavailable, StageResolve, d.Token, msg, nil)
}
