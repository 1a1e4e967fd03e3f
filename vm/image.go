package vm

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Program images: CBOR encoding of a CompiledProgram
// ---------------------------------------------------------------------------

// ImageMagic identifies a Weft program image.
var ImageMagic = [4]byte{'W', 'E', 'F', 'T'}

// ImageVersion is bumped whenever the image layout or the opcode numbering
// changes.
const ImageVersion uint32 = 1

// ErrBadImage is returned when decoding data that is not a valid image.
var ErrBadImage = errors.New("invalid program image")

var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

const (
	imageUserFunction uint8 = iota
	imageInternalFunction
)

type imageFile struct {
	Magic        [4]byte         `cbor:"1,keyasint"`
	Version      uint32          `cbor:"2,keyasint"`
	BuildID      string          `cbor:"3,keyasint,omitempty"`
	SourceDigest string          `cbor:"4,keyasint,omitempty"`
	Cells        []int32         `cbor:"5,keyasint"`
	Lines        []int           `cbor:"6,keyasint,omitempty"`
	Functions    []imageFunction `cbor:"7,keyasint"`
	Globals      []imageValue    `cbor:"8,keyasint,omitempty"`
	Literals     []imageValue    `cbor:"9,keyasint,omitempty"`
}

type imageFunction struct {
	Kind          uint8  `cbor:"1,keyasint"`
	Name          string `cbor:"2,keyasint"`
	IP            int    `cbor:"3,keyasint,omitempty"`
	NumParameters int    `cbor:"4,keyasint,omitempty"`
	NumVariables  int    `cbor:"5,keyasint,omitempty"`
	MinParameters int    `cbor:"6,keyasint,omitempty"`
	MaxParameters int    `cbor:"7,keyasint,omitempty"`
}

type imageValue struct {
	Type  ValueType    `cbor:"1,keyasint"`
	Int   int64        `cbor:"2,keyasint,omitempty"`
	Float float64      `cbor:"3,keyasint,omitempty"`
	Str   string       `cbor:"4,keyasint,omitempty"`
	List  []imageValue `cbor:"5,keyasint,omitempty"`
}

func toImageValue(v *Variable) imageValue {
	iv := imageValue{Type: v.typ}
	switch v.typ {
	case TypeInteger:
		iv.Int = v.i
	case TypeFloat:
		iv.Float = v.f
	case TypeString:
		iv.Str = v.s
	case TypeList:
		iv.List = make([]imageValue, len(v.list))
		for i, e := range v.list {
			iv.List[i] = toImageValue(e)
		}
	}
	return iv
}

func fromImageValue(iv imageValue) (*Variable, error) {
	switch iv.Type {
	case TypeInteger:
		return NewInteger(iv.Int), nil
	case TypeFloat:
		return NewFloat(iv.Float), nil
	case TypeString:
		return NewString(iv.Str), nil
	case TypeList:
		list := make([]*Variable, len(iv.List))
		for i, e := range iv.List {
			v, err := fromImageValue(e)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return &Variable{typ: TypeList, list: list}, nil
	}
	return nil, fmt.Errorf("%w: unknown value type %d", ErrBadImage, iv.Type)
}

func toImageValues(vs []*Variable) []imageValue {
	out := make([]imageValue, len(vs))
	for i, v := range vs {
		out[i] = toImageValue(v)
	}
	return out
}

func fromImageValues(ivs []imageValue) ([]*Variable, error) {
	out := make([]*Variable, len(ivs))
	for i, iv := range ivs {
		v, err := fromImageValue(iv)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EncodeProgram serializes p to canonical CBOR. Internal functions are
// stored by name only.
func EncodeProgram(p *CompiledProgram) ([]byte, error) {
	img := imageFile{
		Magic:        ImageMagic,
		Version:      ImageVersion,
		BuildID:      p.BuildID,
		SourceDigest: p.SourceDigest,
		Cells:        p.Cells,
		Lines:        p.Lines,
		Functions:    make([]imageFunction, len(p.Functions)),
		Globals:      toImageValues(p.Globals),
		Literals:     toImageValues(p.Literals),
	}
	for i, fn := range p.Functions {
		switch f := fn.(type) {
		case *UserFunction:
			img.Functions[i] = imageFunction{
				Kind:          imageUserFunction,
				Name:          f.Name,
				IP:            f.IP,
				NumParameters: f.NumParameters,
				NumVariables:  f.NumVariables,
			}
		case *InternalFunction:
			img.Functions[i] = imageFunction{
				Kind:          imageInternalFunction,
				Name:          f.Name,
				MinParameters: f.MinParameters,
				MaxParameters: f.MaxParameters,
			}
		default:
			return nil, fmt.Errorf("vm: encode program: unknown function kind %T", fn)
		}
	}
	data, err := imageEncMode.Marshal(&img)
	if err != nil {
		return nil, fmt.Errorf("vm: encode program: %w", err)
	}
	return data, nil
}

// DecodeProgram reverses EncodeProgram. Internal functions whose names match
// an intrinsic are bound to it; the rest stay routed to the host.
func DecodeProgram(data []byte) (*CompiledProgram, error) {
	var img imageFile
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if img.Magic != ImageMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadImage, img.Magic[:])
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrBadImage, img.Version, ImageVersion)
	}
	if img.Lines != nil && len(img.Lines) != len(img.Cells) {
		return nil, fmt.Errorf("%w: %d line entries for %d cells", ErrBadImage, len(img.Lines), len(img.Cells))
	}

	p := &CompiledProgram{
		Cells:        img.Cells,
		Lines:        img.Lines,
		BuildID:      img.BuildID,
		SourceDigest: img.SourceDigest,
		Functions:    make([]Function, len(img.Functions)),
	}
	for i, f := range img.Functions {
		switch f.Kind {
		case imageUserFunction:
			p.Functions[i] = &UserFunction{
				Name:          f.Name,
				IP:            f.IP,
				NumParameters: f.NumParameters,
				NumVariables:  f.NumVariables,
			}
		case imageInternalFunction:
			if intrinsic, ok := LookupIntrinsic(f.Name); ok {
				p.Functions[i] = intrinsic
				continue
			}
			p.Functions[i] = &InternalFunction{
				Name:          f.Name,
				MinParameters: f.MinParameters,
				MaxParameters: f.MaxParameters,
			}
		default:
			return nil, fmt.Errorf("%w: function %q has kind %d", ErrBadImage, f.Name, f.Kind)
		}
	}

	var err error
	if p.Globals, err = fromImageValues(img.Globals); err != nil {
		return nil, err
	}
	if p.Literals, err = fromImageValues(img.Literals); err != nil {
		return nil, err
	}
	return p, nil
}

// WriteProgram encodes p into the file at path.
func WriteProgram(path string, p *CompiledProgram) error {
	data, err := EncodeProgram(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("vm: write program: %w", err)
	}
	return nil
}

// ReadProgram decodes the image file at path.
func ReadProgram(path string) (*CompiledProgram, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vm: read program: %w", err)
	}
	return DecodeProgram(data)
}
