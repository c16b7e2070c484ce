package modelgrid

import(
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/tiff"
)

// writeTIFF writes a little-endian, uncompressed, 16-bit grayscale TIFF
// with the given ImageDescription.
func writeTIFF(t *testing.T, filename string, w, h int, pix []uint16, desc string) {
	t.Helper()

	const nTags = 10
	descOff := 8 + 2 + nTags*12 + 4
	descBytes := append([]byte(desc), 0)
	dataOff := descOff + len(descBytes)
	if dataOff%2 == 1 {
		dataOff++
	}

	le := binary.LittleEndian
	buf := &bytes.Buffer{}
	buf.WriteString("II")
	binary.Write(buf, le, uint16(42))
	binary.Write(buf, le, uint32(8))

	binary.Write(buf, le, uint16(nTags))
	entry := func(tag, typ uint16, count, val uint32) {
		binary.Write(buf, le, tag)
		binary.Write(buf, le, typ)
		binary.Write(buf, le, count)
		binary.Write(buf, le, val)
	}
	const short, ascii, long = 3, 2, 4
	entry(256, short, 1, uint32(w))
	entry(257, short, 1, uint32(h))
	entry(258, short, 1, 16)
	entry(259, short, 1, 1)
	entry(262, short, 1, 1)
	entry(270, ascii, uint32(len(descBytes)), uint32(descOff))
	entry(273, long,  1, uint32(dataOff))
	entry(277, short, 1, 1)
	entry(278, short, 1, uint32(h))
	entry(279, long,  1, uint32(w*h*2))
	binary.Write(buf, le, uint32(0))

	buf.Write(descBytes)
	for buf.Len() < dataOff {
		buf.WriteByte(0)
	}
	for _, p := range pix {
		binary.Write(buf, le, p)
	}

	if err := os.WriteFile(filename, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseDescription(t *testing.T) {
	hdr := ParseDescription("PHXTEFF=3500 PHXLOGG=4.5;PHXM_H=-0.5\nOBJECT=trace junk\x00")
	if hdr["PHXTEFF"] != 3500.0 || hdr["PHXLOGG"] != 4.5 || hdr["PHXM_H"] != -0.5 {
		t.Errorf("numbers: %v", hdr)
	}
	if hdr["OBJECT"] != "trace" {
		t.Errorf("OBJECT = %q", hdr["OBJECT"])
	}
	if _, exists := hdr["junk"]; exists || len(hdr) != 4 {
		t.Errorf("unexpected keys: %v", hdr)
	}
}

func TestDirStoreTIFF(t *testing.T) {
	dir := t.TempDir()

	// 3 columns (wavelength) x 2 rows (mu)
	writeTIFF(t, filepath.Join(dir, "t3500.tif"), 3, 2, []uint16{10, 20, 30, 40, 50, 60},
		"PHXTEFF=3500 PHXLOGG=4.5 PHXM_H=0 CRVAL1=0 CDELT1=1 BSCALE=0.5 BZERO=1")

	// No description, so not a grid point
	img := image.NewGray16(image.Rect(0, 0, 3, 2))
	f, err := os.Create(filepath.Join(dir, "plain.tif"))
	if err != nil {
		t.Fatal(err)
	}
	if err := tiff.Encode(f, img, nil); err != nil {
		t.Fatal(err)
	}
	f.Close()

	ds := NewDirStore(dir, nil)
	pis, err := ds.Index(context.Background())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if len(pis) != 1 {
		t.Fatalf("indexed %d points, want 1: %v", len(pis), pis)
	}
	if want := (Params{Teff: 3500, Logg: 4.5, FeH: 0}); pis[0].Params != want {
		t.Errorf("params = %s, want %s", pis[0].Params, want)
	}

	g, err := New(context.Background(), ds, nil)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := g.Get(context.Background(), 3500, 4.5, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	s := pt.Spectrum()
	if len(s.Flux) != 2 || s.NWave() != 3 {
		t.Fatalf("shape %dx%d, want 2x3", len(s.Flux), s.NWave())
	}
	if s.Flux[0][0] != 6 || s.Flux[1][2] != 31 {
		t.Errorf("flux = %v, want BZERO + BSCALE*pixel", s.Flux)
	}
	if s.Wave[2] != 2e-4 {
		t.Errorf("wave = %v", s.Wave)
	}
}

func TestDirStoreYAML(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	for _, teff := range []float64{3000, 4000} {
		raw := &RawPoint{
			Flux: [][]float64{{teff, teff + 1}},
			Wave: []float64{10000, 20000},
		}
		hdr := map[string]interface{}{"PHXTEFF": teff, "PHXLOGG": 5, "PHXM_H": 0, "PHXMASS": teff / 1000}
		if err := WriteYAMLPoint(filepath.Join(dir, fmt.Sprintf("m%.0f.yaml", teff)), hdr, raw); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("header: [oops"), 0o644)
	os.WriteFile(filepath.Join(dir, "README"), []byte("not a model"), 0o644)

	g, err := New(ctx, NewDirStore(dir, nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(g.Points()); n != 2 {
		t.Fatalf("%d points, want 2 (broken files skipped)", n)
	}

	pt, err := g.Get(ctx, 4000, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if s := pt.Spectrum(); s.Wave[0] != 1 || s.Wave[1] != 2 || s.Flux[0][1] != 4001 || s.Meta["mass"] != 4.0 {
		t.Errorf("spectrum = %+v", s)
	}

	ip, err := g.Interpolate(ctx, 3250, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ip.Spec.Flux[0][0] != 3250 {
		t.Errorf("interpolated flux = %v", ip.Spec.Flux)
	}
}

func TestDirStoreMissing(t *testing.T) {
	_, err := New(context.Background(), NewDirStore(filepath.Join(t.TempDir(), "nope"), nil), nil)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("err = %v, want ConfigurationError", err)
	}
}
