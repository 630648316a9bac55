package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Interpolator resolves {{var}} placeholders in templated pipeline fields
// (generated files, report paths, artifact dirs). It supports the built-ins
// {{$timestamp}} and {{$uuid}}.
//
// This lives in domain because it does not depend on YAML/FS/exec.
type Interpolator struct {
	now   func() time.Time
	newID func() (string, error)
}

// InterpolatorOption configures Interpolator.
type InterpolatorOption func(*Interpolator)

// WithNow overrides the clock (useful for tests).
func WithNow(now func() time.Time) InterpolatorOption {
	return func(r *Interpolator) { r.now = now }
}

// WithIDGen overrides UUID generation (useful for tests).
func WithIDGen(gen func() (string, error)) InterpolatorOption {
	return func(r *Interpolator) { r.newID = gen }
}

func NewInterpolator(opts ...InterpolatorOption) *Interpolator {
	r := &Interpolator{
		now:   time.Now,
		newID: newUUID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RuntimeInterp caches built-ins for a single resolution session (one job)
// so repeated {{$uuid}} across fields stays consistent.
type RuntimeInterp struct {
	base     Vars
	builtins Vars
	inner    *Interpolator
}

func (r *Interpolator) NewRuntime(vars Vars) (*RuntimeInterp, error) {
	ts := strconv.FormatInt(r.now().Unix(), 10)

	id, err := r.newID()
	if err != nil {
		return nil, &OpError{
			Op:   "interp.builtins.uuid",
			Kind: KindExecution,
			Err:  err,
		}
	}

	baseCopy := Vars{}
	for k, v := range vars {
		baseCopy[k] = v
	}

	return &RuntimeInterp{
		base: baseCopy,
		builtins: Vars{
			"$timestamp": ts,
			"$uuid":      id,
		},
		inner: r,
	}, nil
}

// ResolveString resolves placeholders in a string.
func (rr *RuntimeInterp) ResolveString(s string) (string, error) {
	return rr.inner.resolveStringWith(rr.base, rr.builtins, s)
}

// ResolveFile resolves the path and content of a generated file spec.
// It returns a copy (does not mutate input).
func (rr *RuntimeInterp) ResolveFile(f FileSpec) (FileSpec, error) {
	out := f

	p, err := rr.ResolveString(f.Path)
	if err != nil {
		return FileSpec{}, wrapField(err, "file.path")
	}
	out.Path = p

	c, err := rr.ResolveString(f.Content)
	if err != nil {
		return FileSpec{}, wrapField(err, "file.content")
	}
	out.Content = c

	return out, nil
}

// ResolveReport resolves the path of a report spec.
func (rr *RuntimeInterp) ResolveReport(r ReportSpec) (ReportSpec, error) {
	out := r
	p, err := rr.ResolveString(r.Path)
	if err != nil {
		return ReportSpec{}, wrapField(err, "report.path")
	}
	out.Path = p
	return out, nil
}

// ResolveArtifacts resolves the directory of an artifact spec.
func (rr *RuntimeInterp) ResolveArtifacts(a ArtifactSpec) (ArtifactSpec, error) {
	out := a
	if a.Dir == "" {
		return out, nil
	}
	d, err := rr.ResolveString(a.Dir)
	if err != nil {
		return ArtifactSpec{}, wrapField(err, "artifacts.dir")
	}
	out.Dir = d
	return out, nil
}

func (r *Interpolator) resolveStringWith(vars Vars, builtins Vars, s string) (string, error) {
	// Fast path: no token start.
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s) + 16)

	for i := 0; i < len(s); {
		if i+1 < len(s) && s[i] == '{' && s[i+1] == '{' {
			start := i + 2

			end := strings.Index(s[start:], "}}")
			if end < 0 {
				return "", &OpError{
					Op:   "interp.resolve",
					Kind: KindInvalidConfig,
					Err:  errors.New("unclosed placeholder"),
				}
			}
			end = start + end

			name := strings.TrimSpace(s[start:end])
			if name == "" {
				return "", &OpError{
					Op:   "interp.resolve",
					Kind: KindInvalidConfig,
					Err:  errors.New("empty placeholder"),
				}
			}

			val, ok := builtins[name]
			if !ok {
				val, ok = vars[name]
			}
			if !ok {
				return "", &OpError{
					Op:   "interp.resolve",
					Kind: KindMissingVar,
					Err:  fmt.Errorf("missing variable: %s", name),
				}
			}

			b.WriteString(val)
			i = end + 2
			continue
		}

		b.WriteByte(s[i])
		i++
	}

	return b.String(), nil
}

func wrapField(err error, field string) error {
	// Keep Kind information, but add context about which field was being resolved.
	return &OpError{
		Op:   "interp.resolve",
		Kind: kindFrom(err),
		Err:  fmt.Errorf("%s: %w", field, err),
	}
}

func kindFrom(err error) ErrorKind {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindExecution
}

func newUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
