package box

import (
	"fmt"
	"io"
	"strings"

	"m7s.live/isobmff/pkg/util"
)

// aligned(8) class FileTypeBox extends Box(‘ftyp’) {
//     unsigned int(32) major_brand;
//     unsigned int(32) minor_version;
//     unsigned int(32) compatible_brands[]; // to end of the box
// }

type FileTypeBox struct {
	MajorBrand       BoxType   `json:"majorBrand"`
	MinorVersion     uint32    `json:"minorVersion"`
	CompatibleBrands []BoxType `json:"compatibleBrands"`
}

func (ftyp *FileTypeBox) Type() BoxType { return TypeFTYP }

func (ftyp *FileTypeBox) Size() uint64 {
	return boxSize(8 + 4*uint64(len(ftyp.CompatibleBrands)))
}

func (ftyp *FileTypeBox) Decode(payload []byte) error {
	b := util.Buffer(payload)
	if err := need(&b, 8, "ftyp"); err != nil {
		return err
	}
	copy(ftyp.MajorBrand[:], b.ReadN(4))
	ftyp.MinorVersion = b.ReadUint32()
	ftyp.CompatibleBrands = nil
	for b.CanReadN(4) {
		var brand BoxType
		copy(brand[:], b.ReadN(4))
		ftyp.CompatibleBrands = append(ftyp.CompatibleBrands, brand)
	}
	return nil
}

func (ftyp *FileTypeBox) writePayload(b *util.Buffer) {
	b.Write(ftyp.MajorBrand[:])
	b.WriteUint32(ftyp.MinorVersion)
	for _, brand := range ftyp.CompatibleBrands {
		b.Write(brand[:])
	}
}

func (ftyp *FileTypeBox) Encode(w io.Writer) (int, error) {
	return encodeBox(w, ftyp)
}

func (ftyp *FileTypeBox) Summary() string {
	brands := make([]string, len(ftyp.CompatibleBrands))
	for i, brand := range ftyp.CompatibleBrands {
		brands[i] = brand.String()
	}
	return fmt.Sprintf("major_brand=%s minor_version=%d compatible_brands=[%s]", ftyp.MajorBrand, ftyp.MinorVersion, strings.Join(brands, ","))
}
