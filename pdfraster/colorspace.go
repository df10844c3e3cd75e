package pdfraster

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ColorKind enumerates the color spaces the extractor understands.
type ColorKind int

const (
	DeviceGray ColorKind = iota
	DeviceRGB
	DeviceCMYK
	ICCBased
	Unknown
)

func (k ColorKind) String() string {
	switch k {
	case DeviceGray:
		return "DeviceGray"
	case DeviceRGB:
		return "DeviceRGB"
	case DeviceCMYK:
		return "DeviceCMYK"
	case ICCBased:
		return "ICCBased"
	default:
		return "Unknown"
	}
}

// ColorSpace is the resolved color space of one image object.
// Components is the number of samples per pixel; Name carries the raw
// PDF name for Unknown spaces.
type ColorSpace struct {
	Kind       ColorKind
	Components int
	Name       string
}

func (cs ColorSpace) String() string {
	switch cs.Kind {
	case ICCBased:
		return fmt.Sprintf("ICCBased(%d)", cs.Components)
	case Unknown:
		return cs.Name
	default:
		return cs.Kind.String()
	}
}

var defaultColorSpace = ColorSpace{Kind: DeviceRGB, Components: 3}

// resolveColorSpace follows the ColorSpace entry of an image dictionary.
// Missing or unresolvable entries fall back to DeviceRGB. Names other than
// the device spaces resolve to Unknown.
func resolveColorSpace(ctx *model.Context, d types.Dict) ColorSpace {
	obj, ok := d.Find("ColorSpace")
	if !ok {
		return defaultColorSpace
	}
	obj, err := ctx.Dereference(obj)
	if err != nil || obj == nil {
		return defaultColorSpace
	}

	switch v := obj.(type) {
	case types.Name:
		return fromName(string(v))
	case types.Array:
		return fromArray(ctx, v)
	}
	return defaultColorSpace
}

func fromName(name string) ColorSpace {
	switch name {
	case "DeviceGray", "G", "CalGray":
		return ColorSpace{Kind: DeviceGray, Components: 1}
	case "DeviceRGB", "RGB", "CalRGB":
		return ColorSpace{Kind: DeviceRGB, Components: 3}
	case "DeviceCMYK", "CMYK":
		return ColorSpace{Kind: DeviceCMYK, Components: 4}
	case "ICCBased":
		return ColorSpace{Kind: ICCBased, Components: 3}
	}
	return ColorSpace{Kind: Unknown, Name: name}
}

// fromArray handles [/Name ...] forms. The first element names the space;
// for ICCBased the second element is the profile stream whose /N gives the
// component count.
func fromArray(ctx *model.Context, arr types.Array) ColorSpace {
	if len(arr) == 0 {
		return defaultColorSpace
	}
	first, err := ctx.Dereference(arr[0])
	if err != nil {
		return defaultColorSpace
	}
	name, ok := first.(types.Name)
	if !ok {
		return defaultColorSpace
	}
	cs := fromName(string(name))
	if cs.Kind != ICCBased || len(arr) < 2 {
		return cs
	}
	if n := iccComponents(ctx, arr[1]); n > 0 {
		cs.Components = n
	}
	return cs
}

func iccComponents(ctx *model.Context, ref types.Object) int {
	obj, err := ctx.Dereference(ref)
	if err != nil || obj == nil {
		return 0
	}
	var d types.Dict
	switch v := obj.(type) {
	case types.StreamDict:
		d = v.Dict
	case *types.StreamDict:
		d = v.Dict
	case types.Dict:
		d = v
	default:
		return 0
	}
	n, ok := intValue(ctx, d, "N")
	if !ok {
		return 0
	}
	return n
}

// intValue reads an integer entry, following indirect references.
func intValue(ctx *model.Context, d types.Dict, key string) (int, bool) {
	obj, found := d.Find(key)
	if !found {
		return 0, false
	}
	obj, err := ctx.Dereference(obj)
	if err != nil {
		return 0, false
	}
	switch v := obj.(type) {
	case types.Integer:
		return int(v), true
	case types.Float:
		return int(v), true
	}
	return 0, false
}
