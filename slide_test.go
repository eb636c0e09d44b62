package dyldcache

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/appsworld/go-dyldcache/types"
)

func putU32s(vals ...uint32) []byte {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

func TestParseSlideInfoV1(t *testing.T) {
	data := putU32s(1, 0x18, 4, 0x28, 2, 128)

	si, err := ParseSlideInfo(data)
	if err != nil {
		t.Fatalf("ParseSlideInfo(v1) = %v", err)
	}
	v1, ok := si.(types.SlideInfo1)
	if !ok {
		t.Fatalf("got %T; want SlideInfo1", si)
	}
	if v1.TocCount != 4 || v1.EntriesCount != 2 || v1.EntriesSize != 128 {
		t.Errorf("v1 = %+v", v1)
	}
}

func TestParseSlideInfoV2(t *testing.T) {
	data := putU32s(2, 0x1000, 0x28, 3, 0x30, 1)
	delta := make([]byte, 16)
	binary.LittleEndian.PutUint64(delta[0:], 0x00FFFF0000000000)
	binary.LittleEndian.PutUint64(delta[8:], 0x180000000)
	data = append(data, delta...)

	si, err := ParseSlideInfo(data)
	if err != nil {
		t.Fatalf("ParseSlideInfo(v2) = %v", err)
	}
	v2, ok := si.(types.SlideInfo2)
	if !ok {
		t.Fatalf("got %T; want SlideInfo2", si)
	}
	if v2.PageSize != 0x1000 || v2.PageStartsCount != 3 || v2.DeltaMask != 0x00FFFF0000000000 || v2.ValueAdd != 0x180000000 {
		t.Errorf("v2 = %+v", v2)
	}
}

func buildSlideV3(pageStartsCount uint32, starts []uint16) []byte {
	data := putU32s(3, 0x1000, pageStartsCount, 0)
	add := make([]byte, 8)
	binary.LittleEndian.PutUint64(add, 0x180000000)
	data = append(data, add...)
	for _, s := range starts {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, s)
		data = append(data, b...)
	}
	return data
}

func TestParseSlideInfoV3(t *testing.T) {
	si, err := ParseSlideInfo(buildSlideV3(3, []uint16{0, 8, 0xffff}))
	if err != nil {
		t.Fatalf("ParseSlideInfo(v3) = %v", err)
	}
	v3, ok := si.(types.SlideInfo3)
	if !ok {
		t.Fatalf("got %T; want SlideInfo3", si)
	}
	if v3.AuthValueAdd != 0x180000000 {
		t.Errorf("auth value add = %#x", v3.AuthValueAdd)
	}
	if len(v3.PageStarts) != 3 || v3.PageStarts[2] != 0xffff {
		t.Errorf("page starts = %v", v3.PageStarts)
	}
}

func TestParseSlideInfoV3PageStartsCap(t *testing.T) {
	data := buildSlideV3(types.MaxSlidePageStarts+1, nil)
	if _, err := ParseSlideInfo(data); !errors.Is(err, ErrSlideInfoParse) {
		t.Errorf("ParseSlideInfo(v3 huge) = %v; want ErrSlideInfoParse", err)
	}
}

func TestParseSlideInfoV5(t *testing.T) {
	data := putU32s(5, 0x4000, 2, 0)
	add := make([]byte, 8)
	binary.LittleEndian.PutUint64(add, 0x180000000)
	data = append(data, add...)
	data = append(data, 0x01, 0x00, 0x02, 0x00)

	si, err := ParseSlideInfo(data)
	if err != nil {
		t.Fatalf("ParseSlideInfo(v5) = %v", err)
	}
	v5, ok := si.(types.SlideInfo5)
	if !ok {
		t.Fatalf("got %T; want SlideInfo5", si)
	}
	if v5.PageSize != 0x4000 || len(v5.PageStarts) != 2 || v5.PageStarts[1] != 2 {
		t.Errorf("v5 = %+v", v5)
	}
}

func TestParseSlideInfoUnknownVersion(t *testing.T) {
	if _, err := ParseSlideInfo(putU32s(9)); !errors.Is(err, ErrUnknownSlideInfoVersion) {
		t.Errorf("ParseSlideInfo(v9) = %v; want ErrUnknownSlideInfoVersion", err)
	}
}

func TestParseSlideInfoTruncated(t *testing.T) {
	if _, err := ParseSlideInfo(putU32s(2, 0x1000)); !errors.Is(err, ErrSlideInfoParse) {
		t.Errorf("ParseSlideInfo(truncated v2) = %v; want ErrSlideInfoParse", err)
	}
}
