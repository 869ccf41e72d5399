package archive

import (
	"errors"
	"fmt"
	"io"

	"repack/internal/services"
)

var errEntryTooLarge = errors.New("entry exceeds size limit")

// budget tracks how much an extraction has produced against its Limits.
type budget struct {
	format  string
	limits  Limits
	entries int
	total   int64
}

func newBudget(format string, limits Limits) *budget {
	return &budget{format: format, limits: limits}
}

func (b *budget) limitErr(message string) error {
	return extractErr(services.ErrCorrupt, b.format, "extraction limit: "+message, nil)
}

// admit counts one more entry, checking its declared size where known.
func (b *budget) admit(declared int64) error {
	b.entries++
	if b.limits.MaxEntries > 0 && b.entries > b.limits.MaxEntries {
		return b.limitErr(fmt.Sprintf("more than %d entries", b.limits.MaxEntries))
	}
	if declared > 0 {
		if b.limits.MaxEntryBytes > 0 && declared > b.limits.MaxEntryBytes {
			return b.limitErr(fmt.Sprintf("entry of %d bytes exceeds %d", declared, b.limits.MaxEntryBytes))
		}
		if b.limits.MaxTotalBytes > 0 && b.total+declared > b.limits.MaxTotalBytes {
			return b.limitErr(fmt.Sprintf("archive expands beyond %d bytes", b.limits.MaxTotalBytes))
		}
	}
	return nil
}

// copy streams r into w, charging the actual bytes written. Declared sizes in
// headers are not trusted.
func (b *budget) copy(w io.Writer, r io.Reader) (int64, error) {
	allowed := int64(-1)
	if b.limits.MaxEntryBytes > 0 {
		allowed = b.limits.MaxEntryBytes
	}
	if b.limits.MaxTotalBytes > 0 {
		remaining := b.limits.MaxTotalBytes - b.total
		if allowed < 0 || remaining < allowed {
			allowed = remaining
		}
	}
	if allowed < 0 {
		n, err := io.Copy(w, r)
		b.total += n
		return n, err
	}
	n, err := io.Copy(w, io.LimitReader(r, allowed+1))
	if n > allowed {
		n = allowed
		b.total += n
		return n, errEntryTooLarge
	}
	b.total += n
	return n, err
}

// charge records bytes produced outside copy, such as by an external tool.
func (b *budget) charge(n int64) error {
	b.total += n
	if b.limits.MaxTotalBytes > 0 && b.total > b.limits.MaxTotalBytes {
		return b.limitErr(fmt.Sprintf("archive expands beyond %d bytes", b.limits.MaxTotalBytes))
	}
	return nil
}

func (b *budget) overflowErr() error {
	if b.limits.MaxTotalBytes > 0 && b.total >= b.limits.MaxTotalBytes {
		return b.limitErr(fmt.Sprintf("archive expands beyond %d bytes", b.limits.MaxTotalBytes))
	}
	return b.limitErr(fmt.Sprintf("entry exceeds %d bytes", b.limits.MaxEntryBytes))
}
