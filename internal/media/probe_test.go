package media

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"media-library/internal/apperr"
	"media-library/internal/mediatypes"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
}

func writeTestJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
}

func TestProbeImages(t *testing.T) {
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "pic.png")
	jpgPath := filepath.Join(dir, "photo.JPG")
	heicPath := filepath.Join(dir, "phone.heic")
	writeTestPNG(t, pngPath, 40, 30)
	writeTestJPEG(t, jpgPath, 64, 48)
	if err := os.WriteFile(heicPath, []byte("not decodable by Go"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		path        string
		contentType string
		width       int
		height      int
	}{
		{"png", pngPath, "image/png", 40, 30},
		{"uppercase jpeg", jpgPath, "image/jpeg", 64, 48},
		{"heic without decoder", heicPath, "image/heic", 0, 0},
	}

	p := NewProber("", 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md, err := p.Probe(context.Background(), tt.path)
			if err != nil {
				t.Fatalf("Probe error: %v", err)
			}
			if md.Kind != mediatypes.KindImage {
				t.Errorf("Kind = %q, want image", md.Kind)
			}
			if md.ContentType != tt.contentType {
				t.Errorf("ContentType = %q, want %q", md.ContentType, tt.contentType)
			}
			if md.Width != tt.width || md.Height != tt.height {
				t.Errorf("dimensions = %dx%d, want %dx%d", md.Width, md.Height, tt.width, tt.height)
			}
			if md.DurationMillis != nil {
				t.Errorf("DurationMillis = %d, want nil for images", *md.DurationMillis)
			}
		})
	}
}

func TestProbeErrors(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(video, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewProber(filepath.Join(dir, "no-such-ffprobe"), 0)

	tests := []struct {
		name string
		path string
		want apperr.Kind
	}{
		{"missing image", filepath.Join(dir, "gone.png"), apperr.KindNotFound},
		{"missing video", filepath.Join(dir, "gone.mp4"), apperr.KindNotFound},
		{"ffprobe unavailable", video, apperr.KindProbe},
		{"unsupported extension", text, apperr.KindProbe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Probe(context.Background(), tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := apperr.KindOf(err); got != tt.want {
				t.Errorf("error kind = %v, want %v (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestParseFFProbe(t *testing.T) {
	tests := []struct {
		name       string
		output     string
		wantErr    bool
		width      int
		height     int
		durationMs int64
	}{
		{
			name:       "container duration",
			output:     `{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":1920,"height":1080,"duration":"9.0"}],"format":{"duration":"12.345"}}`,
			width:      1920,
			height:     1080,
			durationMs: 12345,
		},
		{
			name:       "stream duration fallback",
			output:     `{"streams":[{"codec_type":"video","width":640,"height":360,"duration":"4.5"}],"format":{}}`,
			width:      640,
			height:     360,
			durationMs: 4500,
		},
		{
			name:       "rotated portrait",
			output:     `{"streams":[{"codec_type":"video","width":1920,"height":1080,"tags":{"rotate":"90"}}],"format":{"duration":"1"}}`,
			width:      1080,
			height:     1920,
			durationMs: 1000,
		},
		{
			name:   "unknown duration",
			output: `{"streams":[{"codec_type":"video","width":320,"height":240}],"format":{"duration":"N/A"}}`,
			width:  320,
			height: 240,
		},
		{
			name:    "no video stream",
			output:  `{"streams":[{"codec_type":"audio"}],"format":{"duration":"3"}}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			output:  `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseFFProbe([]byte(tt.output))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseFFProbe error: %v", err)
			}

			w, h := result.dimensions()
			if w != tt.width || h != tt.height {
				t.Errorf("dimensions = %dx%d, want %dx%d", w, h, tt.width, tt.height)
			}

			got := result.durationMillis()
			if tt.durationMs == 0 {
				if got != nil {
					t.Errorf("durationMillis = %d, want nil", *got)
				}
				return
			}
			if got == nil || *got != tt.durationMs {
				t.Errorf("durationMillis = %v, want %d", got, tt.durationMs)
			}
		})
	}
}
