package scene

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// FileName is the name of the scene payload inside a deployment.
const FileName = "scene.2dcl"

// Components is the component list of an entity. On the wire every
// component is a single-key map {tag: payload}.
type Components []Component

var (
	_ msgpack.CustomEncoder = Components(nil)
	_ msgpack.CustomDecoder = (*Components)(nil)
)

// EncodeMsgpack implements msgpack.CustomEncoder.
func (c Components) EncodeMsgpack(enc *msgpack.Encoder) error {
	if c == nil {
		return enc.EncodeNil()
	}
	if err := enc.EncodeArrayLen(len(c)); err != nil {
		return err
	}
	for _, comp := range c {
		if err := enc.EncodeMapLen(1); err != nil {
			return err
		}
		if err := enc.EncodeString(comp.componentTag()); err != nil {
			return err
		}
		if err := enc.Encode(comp); err != nil {
			return fmt.Errorf("encoding %s: %w", comp.componentTag(), err)
		}
	}
	return nil
}

// DecodeMsgpack implements msgpack.CustomDecoder. Unknown tags are skipped.
func (c *Components) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n < 0 {
		*c = nil
		return nil
	}
	out := make(Components, 0, n)
	for range n {
		comp, err := decodeComponent(dec)
		if err != nil {
			return err
		}
		if comp != nil {
			out = append(out, comp)
		}
	}
	*c = out
	return nil
}

func decodeComponent(dec *msgpack.Decoder) (Component, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	var found Component
	for range n {
		tag, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		comp, err := decodeVariant(dec, tag)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", tag, err)
		}
		if found == nil {
			found = comp
		}
	}
	return found, nil
}

func decodeVariant(dec *msgpack.Decoder, tag string) (Component, error) {
	switch tag {
	case TagTransform:
		var v Transform
		return v, dec.Decode(&v)
	case TagSpriteRenderer:
		var v SpriteRenderer
		return v, dec.Decode(&v)
	case TagBoxCollider:
		var v BoxCollider
		return v, dec.Decode(&v)
	case TagCircleCollider:
		var v CircleCollider
		return v, dec.Decode(&v)
	case TagMaskCollider:
		var v MaskCollider
		return v, dec.Decode(&v)
	case TagLevelChange:
		var v LevelChange
		return v, dec.Decode(&v)
	default:
		return nil, dec.Skip()
	}
}

// Encode writes s to w.
func Encode(w io.Writer, s *Scene) error {
	if err := msgpack.NewEncoder(w).Encode(s); err != nil {
		return fmt.Errorf("encoding scene %q: %w", s.Name, err)
	}
	return nil
}

// Decode reads one scene from r.
func Decode(r io.Reader) (*Scene, error) {
	var s Scene
	if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &s, nil
}

// Marshal returns the binary form of s.
func Marshal(s *Scene) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses the binary form of a scene.
func Unmarshal(b []byte) (*Scene, error) {
	return Decode(bytes.NewReader(b))
}

// ReadFile loads a scene payload from disk.
func ReadFile(path string) (*Scene, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene %s: %w", path, err)
	}
	s, err := Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("reading scene %s: %w", path, err)
	}
	return s, nil
}

// WriteFile stores s at path, creating parent directories.
func WriteFile(path string, s *Scene) error {
	b, err := Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing scene %s: %w", path, err)
	}
	return nil
}
