package value_object_test

import (
	"bytes"
	"testing"

	valueobject "ikedadada/go-mixway/internal/domain/value_object"
)

func TestEncodeDecodeCell(t *testing.T) {
	body := []byte("hello")
	c := &valueobject.Cell{
		Link:    valueobject.LinkIDFromParts(7, 1),
		Version: valueobject.Version,
		Cmd:     valueobject.CmdData,
		Seq:     42,
		Body:    body,
	}
	copy(c.Tag[:], bytes.Repeat([]byte{0xAB}, valueobject.CellTagSize))

	buf, err := valueobject.EncodeCell(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(buf) != valueobject.CellSize {
		t.Fatalf("size: %d", len(buf))
	}
	d, err := valueobject.DecodeCell(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Link != c.Link || d.Cmd != c.Cmd || d.Seq != c.Seq || !bytes.Equal(d.Body, body) || d.Tag != c.Tag {
		t.Fatalf("mismatch: %+v", d)
	}
	if d.HasZeroTag() {
		t.Fatal("tag should not read as zero")
	}
}

func TestEncodeCellRejects(t *testing.T) {
	big := make([]byte, valueobject.MaxBodySize+1)
	cases := []struct {
		name string
		cell valueobject.Cell
	}{
		{"zero link id", valueobject.Cell{Version: valueobject.Version, Cmd: valueobject.CmdData}},
		{"invalid command", valueobject.Cell{Link: 1, Version: valueobject.Version, Cmd: valueobject.CellCommand(0xEE)}},
		{"oversized body", valueobject.Cell{Link: 1, Version: valueobject.Version, Cmd: valueobject.CmdData, Body: big}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := valueobject.EncodeCell(&tc.cell); err == nil {
				t.Fatal("encode succeeded, want error")
			}
		})
	}
}

func TestDecodeCellRejects(t *testing.T) {
	good, err := valueobject.EncodeCell(&valueobject.Cell{
		Link: 9, Version: valueobject.Version, Cmd: valueobject.CmdCreate,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	short := good[:100]
	if _, err := valueobject.DecodeCell(short); err == nil {
		t.Fatal("short buffer accepted")
	}

	badVer := append([]byte(nil), good...)
	badVer[4] = 0x7F
	if _, err := valueobject.DecodeCell(badVer); err == nil {
		t.Fatal("bad version accepted")
	}

	badCmd := append([]byte(nil), good...)
	badCmd[5] = 0xEE
	if _, err := valueobject.DecodeCell(badCmd); err == nil {
		t.Fatal("bad command accepted")
	}

	badLen := append([]byte(nil), good...)
	badLen[14] = 0xFF
	badLen[15] = 0xFF
	if _, err := valueobject.DecodeCell(badLen); err == nil {
		t.Fatal("oversized length accepted")
	}

	zeroLink := append([]byte(nil), good...)
	zeroLink[0], zeroLink[1], zeroLink[2], zeroLink[3] = 0, 0, 0, 0
	if _, err := valueobject.DecodeCell(zeroLink); err == nil {
		t.Fatal("zero link id accepted")
	}
}

func TestCellPaddingNotRetained(t *testing.T) {
	c := &valueobject.Cell{Link: 3, Version: valueobject.Version, Cmd: valueobject.CmdData, Body: []byte("x")}
	a, err := valueobject.EncodeCell(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, err := valueobject.EncodeCell(c)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two encodings identical, padding is not random")
	}
	da, _ := valueobject.DecodeCell(a)
	db, _ := valueobject.DecodeCell(b)
	if !bytes.Equal(da.Body, db.Body) {
		t.Fatal("decoded bodies differ")
	}
}

func TestTagInputCoversHeaderAndBody(t *testing.T) {
	c := &valueobject.Cell{Link: 5, Version: valueobject.Version, Cmd: valueobject.CmdExtend, Seq: 7, Body: []byte("abc")}
	in := c.TagInput()
	want := 2 + 8 + 2 + 3
	if len(in) != want {
		t.Fatalf("tag input length = %d, want %d", len(in), want)
	}
	c2 := *c
	c2.Seq = 8
	if bytes.Equal(in, c2.TagInput()) {
		t.Fatal("sequence change must alter tag input")
	}
	c3 := *c
	c3.Link = 6
	if !bytes.Equal(in, c3.TagInput()) {
		t.Fatal("link id must stay outside the tag input")
	}
}
