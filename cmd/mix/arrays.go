package main

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/ahmedtd/actmix/toolbox"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"github.com/sbinet/npyio/npz"
	"gonum.org/v1/gonum/mat"
)

// loadArray reads a float32 or float64 array from an .npy file, or the array
// named key from an .npz archive.
//
// numpy writes C-style (row-major) layouts, which is what AF32 expects.
func loadArray(path, key string) (*toolbox.AF32, error) {
	if strings.EqualFold(filepath.Ext(path), ".npz") {
		return loadNPZArray(path, key)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "while opening array file")
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "while reading npy header")
	}
	if r.Header.Descr.Fortran {
		return nil, errors.New("Fortran-ordered arrays are not supported")
	}

	shape := r.Header.Descr.Shape
	switch r.Header.Descr.Type {
	case "<f4":
		var raw []float32
		if err := r.Read(&raw); err != nil {
			return nil, errors.Wrap(err, "while reading float32 array")
		}
		return makeArray(raw, shape)
	case "<f8":
		var raw []float64
		if err := r.Read(&raw); err != nil {
			return nil, errors.Wrap(err, "while reading float64 array")
		}
		return makeArray(narrow(raw), shape)
	}
	return nil, errors.Errorf("unsupported dtype %q", r.Header.Descr.Type)
}

func loadNPZArray(path, key string) (*toolbox.AF32, error) {
	r, err := npz.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "while opening npz file")
	}
	defer r.Close()

	name, err := npzEntry(r.Keys(), key)
	if err != nil {
		return nil, err
	}

	header := r.Header(name)
	if header.Descr.Fortran {
		return nil, errors.New("Fortran-ordered arrays are not supported")
	}

	switch header.Descr.Type {
	case "<f4":
		var raw []float32
		if err := r.Read(name, &raw); err != nil {
			return nil, errors.Wrapf(err, "while reading %s", name)
		}
		return makeArray(raw, header.Descr.Shape)
	case "<f8":
		var raw []float64
		if err := r.Read(name, &raw); err != nil {
			return nil, errors.Wrapf(err, "while reading %s", name)
		}
		return makeArray(narrow(raw), header.Descr.Shape)
	}
	return nil, errors.Errorf("%s: unsupported dtype %q", name, header.Descr.Type)
}

// npzEntry picks the archive member for key.  numpy stores arrays as
// "<key>.npy"; an empty key selects the only member.
func npzEntry(keys []string, key string) (string, error) {
	if key == "" {
		if len(keys) != 1 {
			return "", errors.Errorf("archive holds %d arrays %v, pick one with --key", len(keys), keys)
		}
		return keys[0], nil
	}
	for _, k := range keys {
		if k == key || k == key+".npy" {
			return k, nil
		}
	}
	return "", errors.Errorf("no array %q in archive %v", key, keys)
}

func makeArray(v []float32, shape []int) (*toolbox.AF32, error) {
	if len(shape) == 0 {
		// numpy scalars have an empty shape.
		shape = []int{len(v)}
	}
	size := 1
	for _, s := range shape {
		if s <= 0 {
			return nil, errors.Errorf("empty array of shape %v", shape)
		}
		size *= s
	}
	if size != len(v) {
		return nil, errors.Errorf("shape %v does not hold %d values", shape, len(v))
	}
	return toolbox.MakeAF32From(v, shape...), nil
}

func narrow(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// writeArray saves a as an .npy array with a's shape.  Matrices go through
// gonum and are stored as float64; every other rank keeps float32.
func writeArray(path string, a *toolbox.AF32) error {
	var val interface{}
	switch len(a.Shape) {
	case 1:
		val = a.V
	case 2:
		data := make([]float64, len(a.V))
		for i, v := range a.V {
			data[i] = float64(v)
		}
		val = mat.NewDense(a.Shape[0], a.Shape[1], data)
	default:
		val = nest(a.V, a.Shape).Interface()
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "while creating output file")
	}
	defer f.Close()

	if err := npyio.Write(f, val); err != nil {
		return errors.Wrap(err, "while writing npy array")
	}
	return f.Close()
}

// nest views v as a [][]...[]float32 of the given shape.  The innermost
// slices alias v.
func nest(v []float32, shape []int) reflect.Value {
	if len(shape) == 1 {
		return reflect.ValueOf(v)
	}
	typ := reflect.TypeOf(v)
	for range shape[1:] {
		typ = reflect.SliceOf(typ)
	}
	out := reflect.MakeSlice(typ, shape[0], shape[0])
	stride := len(v) / shape[0]
	for i := 0; i < shape[0]; i++ {
		out.Index(i).Set(nest(v[i*stride:(i+1)*stride], shape[1:]))
	}
	return out
}
