package formats

import (
	"path/filepath"
	"sort"
	"strings"

	"repack/internal/archive"
	"repack/internal/deps"
	"repack/internal/services"
)

// StageResolve names the resolution stage in failure messages.
const StageResolve = "resolve"

// Capabilities carries the optional codecs discovered at process start.
type Capabilities struct {
	// SevenZipBinary is the resolved 7-Zip executable; empty when absent.
	SevenZipBinary string
	SevenZipDetail string
}

// CapabilitiesFrom converts a dependency probe into registry capabilities.
func CapabilitiesFrom(sevenZip deps.Status) Capabilities {
	if sevenZip.Available {
		return Capabilities{SevenZipBinary: sevenZip.Path}
	}
	return Capabilities{SevenZipDetail: sevenZip.Detail}
}

// Option configures a Registry.
type Option func(*Registry)

// WithArchiveOptions sets the limits and logger passed to every codec.
func WithArchiveOptions(opts archive.Options) Option {
	return func(r *Registry) { r.archiveOpts = opts }
}

// WithSevenZipOptions forwards options to the 7z codec (primarily for tests).
func WithSevenZipOptions(opts ...archive.SevenZipOption) Option {
	return func(r *Registry) { r.sevenZipOpts = append(r.sevenZipOpts, opts...) }
}

// Registry maps tokens and file names to descriptors and codecs. It is
// immutable after construction and safe for concurrent use.
type Registry struct {
	descriptors  []Descriptor
	byToken      map[string]int
	suffixes     []string
	codecs       map[string]archive.Codec
	archiveOpts  archive.Options
	sevenZipOpts []archive.SevenZipOption
}

type formatDef struct {
	desc      Descriptor
	newCodec  func(r *Registry, caps Capabilities) archive.Codec
	needs7zip bool
}

func tarCodec(name string, c archive.Compression) func(*Registry, Capabilities) archive.Codec {
	return func(r *Registry, _ Capabilities) archive.Codec {
		return archive.NewTar(name, c, r.archiveOpts)
	}
}

func known() []formatDef {
	return []formatDef{
		{
			desc: Descriptor{Token: "zip", Extension: ".zip", Direction: Bidirectional, Description: "ZIP archive"},
			newCodec: func(r *Registry, _ Capabilities) archive.Codec {
				return archive.NewZip(r.archiveOpts)
			},
		},
		{
			desc: Descriptor{Token: "7z", Extension: ".7z", Direction: Bidirectional, Dependency: "7-Zip", Description: "7-Zip archive"},
			newCodec: func(r *Registry, caps Capabilities) archive.Codec {
				return archive.NewSevenZip(caps.SevenZipBinary, r.archiveOpts, r.sevenZipOpts...)
			},
			needs7zip: true,
		},
		{
			desc:     Descriptor{Token: "tar", Extension: ".tar", Direction: Bidirectional, Description: "tar archive"},
			newCodec: tarCodec("tar", archive.CompressionNone),
		},
		{
			desc:     Descriptor{Token: "tar.gz", Extension: ".tar.gz", Aliases: []string{"tgz"}, Direction: Bidirectional, Description: "gzip-compressed tar"},
			newCodec: tarCodec("tar.gz", archive.CompressionGzip),
		},
		{
			desc:     Descriptor{Token: "tar.zst", Extension: ".tar.zst", Aliases: []string{"tzst"}, Direction: Bidirectional, Description: "zstd-compressed tar"},
			newCodec: tarCodec("tar.zst", archive.CompressionZstd),
		},
		{
			desc:     Descriptor{Token: "tar.lz4", Extension: ".tar.lz4", Aliases: []string{"tlz4"}, Direction: Bidirectional, Description: "lz4-compressed tar"},
			newCodec: tarCodec("tar.lz4", archive.CompressionLZ4),
		},
		{
			desc:     Descriptor{Token: "tar.bz2", Extension: ".tar.bz2", Aliases: []string{"tbz2", "tbz"}, Direction: SourceOnly, Description: "bzip2-compressed tar"},
			newCodec: tarCodec("tar.bz2", archive.CompressionBzip2),
		},
		{
			desc:     Descriptor{Token: "gz", Extension: ".gz", Direction: SourceOnly, Description: "gzip stream holding a tar archive"},
			newCodec: tarCodec("gz", archive.CompressionGzip),
		},
	}
}

// NewRegistry builds the registry. Availability of optional formats is fixed
// here from caps and never re-probed.
func NewRegistry(caps Capabilities, opts ...Option) *Registry {
	r := &Registry{
		byToken: make(map[string]int),
		codecs:  make(map[string]archive.Codec),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, s := range known() {
		desc := s.desc
		if s.needs7zip && caps.SevenZipBinary == "" {
			desc.Availability = MissingDependency
			desc.Detail = caps.SevenZipDetail
		} else {
			r.codecs[desc.Token] = s.newCodec(r, caps)
		}
		idx := len(r.descriptors)
		r.descriptors = append(r.descriptors, desc)
		r.byToken[desc.Token] = idx
		for _, alias := range desc.Aliases {
			r.byToken[alias] = idx
			r.suffixes = append(r.suffixes, "."+alias)
		}
		r.suffixes = append(r.suffixes, desc.Extension)
	}

	// Longest first so ".tar.gz" wins over ".gz".
	sort.SliceStable(r.suffixes, func(i, j int) bool { return len(r.suffixes[i]) > len(r.suffixes[j]) })
	return r
}

func normalizeToken(token string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(token)), ".")
}

// Resolve looks up a format by token, extension or alias, ignoring case and a
// leading dot.
func (r *Registry) Resolve(token string) (Descriptor, error) {
	key := normalizeToken(token)
	idx, ok := r.byToken[key]
	if !ok {
		if key == "" {
			key = "(empty)"
		}
		return Descriptor{}, services.Wrap(services.ErrUnsupportedFormat, StageResolve, key, "unknown container format", nil)
	}
	return r.descriptors[idx], nil
}

// ResolvePath identifies the format of a file from its longest known suffix
// and returns the base name with that suffix removed.
func (r *Registry) ResolvePath(path string) (Descriptor, string, error) {
	name := filepath.Base(path)
	lower := strings.ToLower(name)
	for _, suffix := range r.suffixes {
		if len(lower) > len(suffix) && strings.HasSuffix(lower, suffix) {
			desc, err := r.Resolve(suffix)
			if err != nil {
				return Descriptor{}, "", err
			}
			return desc, name[:len(name)-len(suffix)], nil
		}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = "(none)"
	}
	return Descriptor{}, "", services.Wrap(services.ErrUnsupportedFormat, StageResolve, strings.TrimPrefix(ext, "."), "unrecognized file extension", nil)
}

// Codec returns the codec for desc, or a dependency-unavailable error when the
// format is known but cannot run in this deployment.
func (r *Registry) Codec(desc Descriptor) (archive.Codec, error) {
	if _, ok := r.byToken[desc.Token]; !ok {
		return nil, services.Wrap(services.ErrUnsupportedFormat, StageResolve, desc.Token, "unknown container format", nil)
	}
	if err := desc.checkAvailable(); err != nil {
		return nil, err
	}
	codec, ok := r.codecs[desc.Token]
	if !ok {
		return nil, services.Wrap(services.ErrDependencyUnavailable, StageResolve, desc.Token, "no codec registered", nil)
	}
	return codec, nil
}

// Descriptors lists every known format in registration order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Extensions returns every recognised file suffix, longest first.
func (r *Registry) Extensions() []string {
	return append([]string(nil), r.suffixes...)
}
