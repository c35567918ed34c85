package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadFeatures streams features from r. It accepts a FeatureCollection document
// (features are decoded one at a time) as well as line-delimited features.
func ReadFeatures[T any](r io.Reader) *Pipeline[T] {
	return FromFunc(func(context.Context) Iterator[T] {
		return &featureIter[T]{dec: json.NewDecoder(bufio.NewReaderSize(r, 1<<16))}
	})
}

// ReadFile is ReadFeatures over a file opened when the pipeline starts.
func ReadFile[T any](path string) *Pipeline[T] {
	return FromFunc(func(context.Context) Iterator[T] {
		f, err := os.Open(path)
		if err != nil {
			return &featureIter[T]{err: fmt.Errorf("open %s: %w", path, err)}
		}
		return &featureIter[T]{
			dec:    json.NewDecoder(bufio.NewReaderSize(f, 1<<16)),
			closer: f,
			name:   path,
		}
	})
}

type readState int

const (
	stateStart readState = iota
	stateCollection
	stateStream
	stateDone
)

type featureIter[T any] struct {
	dec    *json.Decoder
	closer io.Closer
	name   string
	state  readState
	n      int
	err    error
}

func (it *featureIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if it.err != nil {
		return zero, false, it.err
	}
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	v, ok, err := it.next()
	if err != nil {
		it.err = fmt.Errorf("read %s feature %d: %w", it.source(), it.n, err)
		return zero, false, it.err
	}
	if ok {
		it.n++
	}
	return v, ok, nil
}

func (it *featureIter[T]) source() string {
	if it.name == "" {
		return "geojson"
	}
	return it.name
}

func (it *featureIter[T]) next() (T, bool, error) {
	var zero T
	for {
		switch it.state {
		case stateStart:
			v, ok, err := it.start()
			if err != nil || ok {
				return v, ok, err
			}
		case stateCollection:
			if it.dec.More() {
				var v T
				if err := it.dec.Decode(&v); err != nil {
					return zero, false, err
				}
				return v, true, nil
			}
			if err := it.finishCollection(); err != nil {
				return zero, false, err
			}
			it.state = stateStream
		case stateStream:
			var v T
			err := it.dec.Decode(&v)
			if errors.Is(err, io.EOF) {
				it.state = stateDone
				continue
			}
			if err != nil {
				return zero, false, err
			}
			return v, true, nil
		default:
			return zero, false, nil
		}
	}
}

// start inspects the first object. A "features" member switches to collection
// mode; otherwise the object itself is the first feature of a stream.
func (it *featureIter[T]) start() (T, bool, error) {
	var zero T
	tok, err := it.dec.Token()
	if errors.Is(err, io.EOF) {
		it.state = stateDone
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return zero, false, fmt.Errorf("expected GeoJSON object, got %v", tok)
	}

	fields := make(map[string]json.RawMessage)
	for it.dec.More() {
		tok, err := it.dec.Token()
		if err != nil {
			return zero, false, err
		}
		key, _ := tok.(string)
		if key == "features" {
			tok, err := it.dec.Token()
			if err != nil {
				return zero, false, err
			}
			if d, ok := tok.(json.Delim); !ok || d != '[' {
				return zero, false, fmt.Errorf("features must be an array")
			}
			it.state = stateCollection
			return zero, false, nil
		}
		var raw json.RawMessage
		if err := it.dec.Decode(&raw); err != nil {
			return zero, false, err
		}
		fields[key] = raw
	}
	if _, err := it.dec.Token(); err != nil {
		return zero, false, err
	}

	it.state = stateStream
	buf, err := json.Marshal(fields)
	if err != nil {
		return zero, false, err
	}
	var v T
	if err := json.Unmarshal(buf, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// finishCollection consumes the closing bracket and any members after features.
func (it *featureIter[T]) finishCollection() error {
	if _, err := it.dec.Token(); err != nil {
		return err
	}
	for it.dec.More() {
		if _, err := it.dec.Token(); err != nil {
			return err
		}
		var skip json.RawMessage
		if err := it.dec.Decode(&skip); err != nil {
			return err
		}
	}
	_, err := it.dec.Token()
	return err
}

func (it *featureIter[T]) Close() error {
	if it.closer != nil {
		err := it.closer.Close()
		it.closer = nil
		return err
	}
	return nil
}

// FeatureCollectionWriter streams features into a FeatureCollection document.
// File-backed writers publish the document with a rename on Close so readers
// never observe partial output.
type FeatureCollectionWriter struct {
	w       *bufio.Writer
	file    *os.File
	path    string
	started bool
	n       int
}

func NewFeatureCollectionWriter(w io.Writer) *FeatureCollectionWriter {
	return &FeatureCollectionWriter{w: bufio.NewWriterSize(w, 1<<16)}
}

func CreateFeatureCollection(path string) (*FeatureCollectionWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	fw := NewFeatureCollectionWriter(f)
	fw.file = f
	fw.path = path
	return fw, nil
}

func (w *FeatureCollectionWriter) header() error {
	if w.started {
		return nil
	}
	w.started = true
	_, err := w.w.WriteString(`{"type":"FeatureCollection","features":[` + "\n")
	return err
}

func (w *FeatureCollectionWriter) Write(feature any) error {
	if err := w.header(); err != nil {
		return err
	}
	buf, err := json.Marshal(feature)
	if err != nil {
		return fmt.Errorf("encode feature: %w", err)
	}
	if w.n > 0 {
		if _, err := w.w.WriteString(",\n"); err != nil {
			return err
		}
	}
	if _, err := w.w.Write(buf); err != nil {
		return err
	}
	w.n++
	return nil
}

func (w *FeatureCollectionWriter) Count() int { return w.n }

func (w *FeatureCollectionWriter) Close() error {
	if err := w.header(); err != nil {
		return w.fail(err)
	}
	if _, err := w.w.WriteString("\n]}\n"); err != nil {
		return w.fail(err)
	}
	if err := w.w.Flush(); err != nil {
		return w.fail(err)
	}
	if w.file == nil {
		return nil
	}
	if err := w.file.Close(); err != nil {
		return w.fail(err)
	}
	if err := os.Rename(w.file.Name(), w.path); err != nil {
		return w.fail(err)
	}
	return nil
}

// Abort discards a file-backed document.
func (w *FeatureCollectionWriter) Abort() {
	if w.file != nil {
		_ = w.file.Close()
		_ = os.Remove(w.file.Name())
	}
}

func (w *FeatureCollectionWriter) fail(err error) error {
	w.Abort()
	return fmt.Errorf("write %s: %w", w.path, err)
}

// WriteAll drains p into w and returns the number of features written.
func WriteAll[T any](ctx context.Context, p *Pipeline[T], w *FeatureCollectionWriter) (int, error) {
	before := w.Count()
	err := Drain(ctx, p, func(_ context.Context, v T) error { return w.Write(v) })
	return w.Count() - before, err
}
